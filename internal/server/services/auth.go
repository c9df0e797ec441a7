// Package services contains server-side business logic. This file implements
// AuthService, which handles registration, password and federated login, and
// issuing/rotating the JWT session pair against the account's single
// refresh-token slot.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/logging"
	"github.com/avekshin/authkeeper/internal/server/auth"
	"github.com/avekshin/authkeeper/internal/server/models"
	"github.com/avekshin/authkeeper/internal/server/password"
	"github.com/avekshin/authkeeper/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a longer-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService provides authentication-related operations:
// - Register: create accounts and open a first session
// - Login / FederatedLogin: verify identity and mint tokens
// - Refresh: rotate the refresh token and mint a new access token
// - Logout: drop the live session
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.Manager
	hasher      *password.Hasher
	resolver    *Resolver
	logger      logging.Logger
}

// NewAuthService constructs an AuthService from its collaborators.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.Manager,
	hasher *password.Hasher, resolver *Resolver, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		resolver:    resolver,
		logger:      logger.With("service", "auth"),
	}
}

// Register creates an unverified account with a password credential and opens
// its first session. A taken email surfaces as common.ErrAlreadyExists.
func (s *AuthService) Register(ctx context.Context, email, username, plaintext string) (*models.Account, *TokenPair, error) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, nil, common.ErrInternal
	}

	// account row and provider rows must commit together, so an account
	// can never become durable with an empty provider set
	var account *models.Account
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var createErr error
		account, createErr = s.repomanager.Accounts(tx).Create(ctx, &models.Account{
			Email:        email,
			Username:     username,
			PasswordHash: hash,
			Providers:    []models.Provider{models.ProviderPassword},
		})
		return createErr
	}); err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, nil, common.ErrAlreadyExists
		}
		return nil, nil, fmt.Errorf("error creating account: %w", err)
	}

	pair, err := s.openSession(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// Login verifies the email/password pair and, on success, opens a fresh
// session, superseding any previous one. Missing accounts, accounts without a
// password credential, and wrong passwords are indistinguishable to the
// caller.
func (s *AuthService) Login(ctx context.Context, email, plaintext string) (*models.Account, *TokenPair, error) {
	repo := s.repomanager.Accounts(s.db)
	account, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, common.ErrInvalidCredentials
		}
		return nil, nil, common.ErrInternal
	}

	if account.PasswordHash == "" {
		// federated-only account, no password credential to check
		return nil, nil, common.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil || !ok {
		return nil, nil, common.ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// FederatedLogin resolves a provider assertion into an account and opens a
// session for it, exactly as a normal login would.
func (s *AuthService) FederatedLogin(ctx context.Context, assertion FederatedAssertion) (*models.Account, *TokenPair, error) {
	account, err := s.resolver.Resolve(ctx, assertion)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.openSession(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// Refresh validates a presented refresh token, rotates the account's slot via
// compare-and-set, and returns a fresh TokenPair. A superseded token, a token
// for a vanished account, or losing the rotation race all yield
// common.ErrInvalidToken; an outlived token yields
// common.ErrRefreshTokenExpired.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	accountID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, common.ErrRefreshTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	repo := s.repomanager.Accounts(s.db)
	account, err := repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrInternal
	}

	pair, err := s.mintPair(account)
	if err != nil {
		return nil, err
	}

	matched, err := repo.UpdateRefreshToken(ctx, account.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, common.ErrInternal
	}
	if !matched {
		// the presented token is not the live slot value: either it was
		// already rotated, or a concurrent refresh won the race
		return nil, common.ErrInvalidToken
	}

	return pair, nil
}

// Logout clears the account's refresh-token slot, ending the live session.
// Logging out with no live session is not an error.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	repo := s.repomanager.Accounts(s.db)
	if err := repo.ClearRefreshToken(ctx, accountID); err != nil {
		return common.ErrInternal
	}
	return nil
}

// GetProfile returns the account record for the authenticated caller.
func (s *AuthService) GetProfile(ctx context.Context, accountID string) (*models.Account, error) {
	repo := s.repomanager.Accounts(s.db)
	account, err := repo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, common.ErrInternal
	}
	return account, nil
}

// openSession mints a token pair and stores its refresh half in the account's
// slot, superseding whatever session was live before.
func (s *AuthService) openSession(ctx context.Context, account *models.Account) (*TokenPair, error) {
	pair, err := s.mintPair(account)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Accounts(s.db)
	if err := repo.SetRefreshToken(ctx, account.ID, pair.RefreshToken); err != nil {
		return nil, common.ErrInternal
	}

	return pair, nil
}

func (s *AuthService) mintPair(account *models.Account) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(account)
	if err != nil {
		return nil, common.ErrInternal
	}
	refresh, err := s.tokens.IssueRefreshToken(account)
	if err != nil {
		return nil, common.ErrInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
