package challenges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/server/models"
)

// PostgresRepository implements challenge storage over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	id := uuid.New().String()

	query := `INSERT INTO challenges (id, account_id, purpose, code, token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, account_id, purpose, code, token, expires_at, created_at`

	created := &models.Challenge{}
	err := r.db.QueryRowContext(ctx, query,
		id, challenge.AccountID, challenge.Purpose, challenge.Code,
		challenge.Token, challenge.ExpiresAt,
	).Scan(&created.ID, &created.AccountID, &created.Purpose, &created.Code,
		&created.Token, &created.ExpiresAt, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating challenge: %w", err)
	}

	return created, nil
}

func (r *PostgresRepository) Find(ctx context.Context, accountID string, purpose models.Purpose) (*models.Challenge, error) {
	query := `SELECT id, account_id, purpose, code, token, expires_at, created_at
		FROM challenges WHERE account_id = $1 AND purpose = $2`

	challenge := &models.Challenge{}
	err := r.db.QueryRowContext(ctx, query, accountID, purpose).Scan(
		&challenge.ID, &challenge.AccountID, &challenge.Purpose, &challenge.Code,
		&challenge.Token, &challenge.ExpiresAt, &challenge.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error finding challenge: %w", err)
	}

	return challenge, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID string, purpose models.Purpose) error {
	query := `DELETE FROM challenges WHERE account_id = $1 AND purpose = $2`

	if _, err := r.db.ExecContext(ctx, query, accountID, purpose); err != nil {
		return fmt.Errorf("error deleting challenge: %w", err)
	}
	return nil
}
