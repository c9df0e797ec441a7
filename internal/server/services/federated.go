package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/logging"
	"github.com/avekshin/authkeeper/internal/server/models"
	"github.com/avekshin/authkeeper/internal/server/repositories/repomanager"
)

// FederatedAssertion is the verified identity tuple handed over after a
// provider completes its OAuth handshake. Its authenticity is trusted; the
// handshake itself happens outside this service.
type FederatedAssertion struct {
	Email       string
	DisplayName string
	Provider    models.Provider
}

// Resolver reconciles a federated assertion with the account store: it finds
// the account owning the asserted email or creates one, and unions the
// provider into the account's provider set. A federated assertion implies a
// verified email.
type Resolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewResolver(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *Resolver {
	return &Resolver{
		db:          db,
		repomanager: m,
		logger:      logger.With("service", "federated"),
	}
}

// Resolve returns the account for the assertion, creating it when the email
// is new. An assertion without an email (GitHub profiles can withhold it)
// fails with common.ErrProviderNoEmail and writes nothing.
func (r *Resolver) Resolve(ctx context.Context, assertion FederatedAssertion) (*models.Account, error) {
	if assertion.Email == "" {
		return nil, common.ErrProviderNoEmail
	}

	account, err := r.link(ctx, assertion)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	account, err = r.create(ctx, assertion)
	if errors.Is(err, common.ErrAlreadyExists) {
		// lost a creation race for the same email, link to the winner
		return r.link(ctx, assertion)
	}
	return account, err
}

// link loads the existing account for the asserted email and brings its
// verification flag and provider set up to date.
func (r *Resolver) link(ctx context.Context, assertion FederatedAssertion) (*models.Account, error) {
	repo := r.repomanager.Accounts(r.db)
	account, err := repo.FindByEmail(ctx, assertion.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error finding account: %w", err)
	}

	needsVerify := !account.IsEmailVerified
	needsProvider := !account.HasProvider(assertion.Provider)
	if !needsVerify && !needsProvider {
		return account, nil
	}

	if err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := r.repomanager.Accounts(tx)
		if needsVerify {
			if err := repoTx.SetEmailVerified(ctx, account.ID); err != nil {
				return err
			}
		}
		if needsProvider {
			if err := repoTx.AddProvider(ctx, account.ID, assertion.Provider); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("error linking provider: %w", err)
	}

	account.IsEmailVerified = true
	if needsProvider {
		account.Providers = append(account.Providers, assertion.Provider)
	}
	return account, nil
}

func (r *Resolver) create(ctx context.Context, assertion FederatedAssertion) (*models.Account, error) {
	// account row and provider rows must commit together, so an account
	// can never become durable with an empty provider set
	var account *models.Account
	if err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var createErr error
		account, createErr = r.repomanager.Accounts(tx).Create(ctx, &models.Account{
			Email:           assertion.Email,
			Username:        assertion.DisplayName,
			Providers:       []models.Provider{assertion.Provider},
			IsEmailVerified: true,
		})
		return createErr
	}); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	r.logger.Info(ctx, "account created via federated login",
		"account_id", account.ID, "provider", assertion.Provider)
	return account, nil
}
