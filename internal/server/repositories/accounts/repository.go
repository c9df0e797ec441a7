// Package accounts declares the repository contract for the durable
// credential records.
package accounts

import (
	"context"

	"github.com/avekshin/authkeeper/internal/server/models"
)

// Repository defines persistence operations for accounts. Implementations
// must enforce email uniqueness at the storage level: Create surfaces a
// uniqueness violation instead of silently succeeding twice, so
// check-then-create races resolve safely.
type Repository interface {
	// Create inserts a new account together with its provider set and
	// returns it with the generated id. Returns common.ErrAlreadyExists
	// when the email is taken. The account and provider rows are separate
	// statements, so callers bind the repository to a transaction to keep
	// both writes atomic.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// FindByEmail returns the account with the given email, including its
	// provider set, or common.ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// FindByID returns the account with the given id, including its
	// provider set, or common.ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.Account, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetEmailVerified marks the account's email as verified.
	SetEmailVerified(ctx context.Context, id string) error

	// AddProvider links a provider to the account. Linking an already
	// linked provider is a no-op (set-union semantics).
	AddProvider(ctx context.Context, id string, provider models.Provider) error

	// SetRefreshToken unconditionally overwrites the refresh-token slot,
	// superseding any previously issued session.
	SetRefreshToken(ctx context.Context, id, token string) error

	// UpdateRefreshToken swaps the single refresh-token slot from oldToken
	// to newToken and reports whether a row matched. A false result means
	// the presented token was superseded (or cleared) by a concurrent
	// operation.
	UpdateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error)

	// ClearRefreshToken empties the refresh-token slot. Clearing an
	// already empty slot is not an error.
	ClearRefreshToken(ctx context.Context, id string) error
}
