package services

import (
	"context"
	"errors"
	"testing"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/server/models"
)

func TestResolve_LinksProviderAndVerifies(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	seeded, err := rm.accounts.Create(context.Background(), &models.Account{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "hash",
		Providers:    []models.Provider{models.ProviderPassword},
	})
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}

	// verification flag and provider union are written in one transaction
	mock.ExpectBegin()
	mock.ExpectCommit()

	r := NewResolver(db, rm, nopLogger{})
	account, err := r.Resolve(context.Background(), FederatedAssertion{
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Provider:    models.ProviderGoogle,
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if account.ID != seeded.ID {
		t.Fatalf("resolved to a different account: %q vs %q", account.ID, seeded.ID)
	}
	if !account.IsEmailVerified {
		t.Fatal("federated assertion must mark the email verified")
	}

	stored := rm.accounts.stored(t, seeded.ID)
	if !stored.IsEmailVerified {
		t.Fatal("verification flag not persisted")
	}
	if len(stored.Providers) != 2 || !stored.HasProvider(models.ProviderGoogle) || !stored.HasProvider(models.ProviderPassword) {
		t.Fatalf("unexpected provider set: %v", stored.Providers)
	}
	if stored.PasswordHash != "hash" {
		t.Fatal("password hash must survive provider linking")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestResolve_RepeatedLinkLeavesSetUnchanged(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	seeded, err := rm.accounts.Create(context.Background(), &models.Account{
		Email:           "alice@example.com",
		Providers:       []models.Provider{models.ProviderGoogle},
		IsEmailVerified: true,
	})
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}

	// already verified and already linked: no transaction expected
	r := NewResolver(db, rm, nopLogger{})
	if _, err := r.Resolve(context.Background(), FederatedAssertion{
		Email:    "alice@example.com",
		Provider: models.ProviderGoogle,
	}); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	stored := rm.accounts.stored(t, seeded.ID)
	if len(stored.Providers) != 1 {
		t.Fatalf("provider set must not grow on repeat link: %v", stored.Providers)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestResolve_CreatesVerifiedAccount(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	// account row and provider rows are created in one transaction
	mock.ExpectBegin()
	mock.ExpectCommit()

	rm := newFakeRepoManager()
	r := NewResolver(db, rm, nopLogger{})

	account, err := r.Resolve(context.Background(), FederatedAssertion{
		Email:       "dave@example.com",
		DisplayName: "Dave",
		Provider:    models.ProviderGitHub,
	})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !account.IsEmailVerified {
		t.Fatal("new federated account must be verified")
	}
	if account.PasswordHash != "" {
		t.Fatal("new federated account must have no password hash")
	}
	if len(account.Providers) != 1 || account.Providers[0] != models.ProviderGitHub {
		t.Fatalf("unexpected providers: %v", account.Providers)
	}
	if account.Username != "Dave" {
		t.Fatalf("unexpected username: %q", account.Username)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestResolve_NoEmailWritesNothing(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := newFakeRepoManager()
	r := NewResolver(db, rm, nopLogger{})

	_, err := r.Resolve(context.Background(), FederatedAssertion{
		DisplayName: "ghost",
		Provider:    models.ProviderGitHub,
	})
	if !errors.Is(err, common.ErrProviderNoEmail) {
		t.Fatalf("expected ErrProviderNoEmail, got %v", err)
	}
	if len(rm.accounts.byID) != 0 {
		t.Fatal("no account must be created for an assertion without email")
	}
}
