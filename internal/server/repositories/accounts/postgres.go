package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/server/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository is the Postgres-backed account store. It operates on a
// dbx.DBTX so callers decide whether operations run on the pool or inside a
// transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	id := uuid.New().String()

	query := `INSERT INTO accounts (id, email, username, password_hash, is_email_verified, refresh_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, username, password_hash, is_email_verified, refresh_token, created_at, updated_at`

	created := &models.Account{}
	err := r.db.QueryRowContext(ctx, query,
		id, account.Email, account.Username, account.PasswordHash,
		account.IsEmailVerified, account.RefreshToken,
	).Scan(&created.ID, &created.Email, &created.Username, &created.PasswordHash,
		&created.IsEmailVerified, &created.RefreshToken, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	for _, p := range account.Providers {
		if err := r.AddProvider(ctx, created.ID, p); err != nil {
			return nil, err
		}
		created.Providers = append(created.Providers, p)
	}

	return created, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT id, email, username, password_hash, is_email_verified, refresh_token, created_at, updated_at
		FROM accounts WHERE email = $1`
	return r.findOne(ctx, query, email)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT id, email, username, password_hash, is_email_verified, refresh_token, created_at, updated_at
		FROM accounts WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	account := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID, &account.Email, &account.Username, &account.PasswordHash,
		&account.IsEmailVerified, &account.RefreshToken, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error finding account: %w", err)
	}

	providers, err := r.loadProviders(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.Providers = providers

	return account, nil
}

func (r *PostgresRepository) loadProviders(ctx context.Context, accountID string) ([]models.Provider, error) {
	query := `SELECT provider FROM account_providers WHERE account_id = $1 ORDER BY provider`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("error loading providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("error scanning provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error loading providers: %w", err)
	}

	return providers, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}
	return r.requireMatch(result)
}

func (r *PostgresRepository) SetEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE accounts SET is_email_verified = true, updated_at = now() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("error marking email verified: %w", err)
	}
	return r.requireMatch(result)
}

func (r *PostgresRepository) AddProvider(ctx context.Context, id string, provider models.Provider) error {
	query := `INSERT INTO account_providers (account_id, provider) VALUES ($1, $2)
		ON CONFLICT (account_id, provider) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, id, provider); err != nil {
		return fmt.Errorf("error adding provider: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	query := `UPDATE accounts SET refresh_token = $2, updated_at = now() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, token)
	if err != nil {
		return fmt.Errorf("error storing refresh token: %w", err)
	}
	return r.requireMatch(result)
}

func (r *PostgresRepository) UpdateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	// Compare-and-set on the single refresh-token slot: of two concurrent
	// rotations presenting the same token only one matches a row.
	query := `UPDATE accounts SET refresh_token = $3, updated_at = now()
		WHERE id = $1 AND refresh_token = $2`

	result, err := r.db.ExecContext(ctx, query, id, oldToken, newToken)
	if err != nil {
		return false, fmt.Errorf("error rotating refresh token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error rotating refresh token: %w", err)
	}
	return affected > 0, nil
}

func (r *PostgresRepository) ClearRefreshToken(ctx context.Context, id string) error {
	query := `UPDATE accounts SET refresh_token = '', updated_at = now() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("error clearing refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) requireMatch(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking affected rows: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}
