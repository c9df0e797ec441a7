// Package challenges stores short-lived verification challenges keyed by
// account and purpose.
package challenges

import (
	"context"

	"github.com/avekshin/authkeeper/internal/server/models"
)

// Repository defines persistence operations for challenges. At most one
// challenge per (account, purpose) pair exists at a time, enforced by a
// unique index; callers replace a challenge by deleting then creating inside
// a transaction.
type Repository interface {
	// Create stores a fresh challenge and returns it with the generated id.
	Create(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error)

	// Find returns the pending challenge for the account and purpose, or
	// common.ErrNotFound.
	Find(ctx context.Context, accountID string, purpose models.Purpose) (*models.Challenge, error)

	// Delete removes the challenge for the account and purpose. Deleting
	// a missing challenge is not an error.
	Delete(ctx context.Context, accountID string, purpose models.Purpose) error
}
