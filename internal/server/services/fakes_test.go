package services

// In-memory fakes for the repository and mail collaborators. They keep real
// state (maps guarded by a mutex) so lifecycle tests can run whole flows:
// register, rotate, consume a challenge, and observe the stored records.

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/logging"
	"github.com/avekshin/authkeeper/internal/server/models"
	accountsrepo "github.com/avekshin/authkeeper/internal/server/repositories/accounts"
	challengesrepo "github.com/avekshin/authkeeper/internal/server/repositories/challenges"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

type nopLogger struct{}

func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

// --- accounts fake ---

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*models.Account
	seq  int

	failWith error // when set, every call fails with this error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]*models.Account{}}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.Providers = append([]models.Provider(nil), a.Providers...)
	return &c
}

func (f *memAccounts) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, existing := range f.byID {
		if existing.Email == account.Email {
			return nil, common.ErrAlreadyExists
		}
	}
	f.seq++
	created := cloneAccount(account)
	created.ID = fmt.Sprintf("acct-%d", f.seq)
	f.byID[created.ID] = created
	return cloneAccount(created), nil
}

func (f *memAccounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, a := range f.byID {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *memAccounts) FindByID(ctx context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (f *memAccounts) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (f *memAccounts) SetEmailVerified(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	a.IsEmailVerified = true
	return nil
}

func (f *memAccounts) AddProvider(ctx context.Context, id string, provider models.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	if !a.HasProvider(provider) {
		a.Providers = append(a.Providers, provider)
	}
	return nil
}

func (f *memAccounts) SetRefreshToken(ctx context.Context, id, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	a.RefreshToken = token
	return nil
}

func (f *memAccounts) UpdateRefreshToken(ctx context.Context, id, oldToken, newToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok || a.RefreshToken != oldToken {
		return false, nil
	}
	a.RefreshToken = newToken
	return true, nil
}

func (f *memAccounts) ClearRefreshToken(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		a.RefreshToken = ""
	}
	return nil
}

// stored peeks at the backing record, bypassing the repository contract.
func (f *memAccounts) stored(t *testing.T, id string) *models.Account {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		t.Fatalf("no stored account %q", id)
	}
	return cloneAccount(a)
}

// --- challenges fake ---

type challengeKey struct {
	accountID string
	purpose   models.Purpose
}

type memChallenges struct {
	mu    sync.Mutex
	byKey map[challengeKey]*models.Challenge
	seq   int
}

func newMemChallenges() *memChallenges {
	return &memChallenges{byKey: map[challengeKey]*models.Challenge{}}
}

func (f *memChallenges) Create(ctx context.Context, challenge *models.Challenge) (*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := challengeKey{challenge.AccountID, challenge.Purpose}
	if _, exists := f.byKey[key]; exists {
		// mirrors the unique (account_id, purpose) index
		return nil, fmt.Errorf("duplicate challenge for %v", key)
	}
	f.seq++
	created := *challenge
	created.ID = fmt.Sprintf("chal-%d", f.seq)
	f.byKey[key] = &created
	out := created
	return &out, nil
}

func (f *memChallenges) Find(ctx context.Context, accountID string, purpose models.Purpose) (*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byKey[challengeKey{accountID, purpose}]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *c
	return &out, nil
}

func (f *memChallenges) Delete(ctx context.Context, accountID string, purpose models.Purpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byKey, challengeKey{accountID, purpose})
	return nil
}

// pending peeks at the live challenge for (accountID, purpose), or nil.
func (f *memChallenges) pending(accountID string, purpose models.Purpose) *models.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byKey[challengeKey{accountID, purpose}]
	if !ok {
		return nil
	}
	out := *c
	return &out
}

// put injects a challenge directly, for expiry tests.
func (f *memChallenges) put(challenge *models.Challenge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *challenge
	f.byKey[challengeKey{c.AccountID, c.Purpose}] = &c
}

// --- repomanager fake ---

type fakeRepoManager struct {
	accounts   *memAccounts
	challenges *memChallenges
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{accounts: newMemAccounts(), challenges: newMemChallenges()}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accountsrepo.Repository {
	return m.accounts
}
func (m *fakeRepoManager) Challenges(db dbx.DBTX) challengesrepo.Repository {
	return m.challenges
}

// --- mailer fake ---

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: html})
	return nil
}

func (f *fakeMailer) lastSent(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no mail sent")
	}
	return f.sent[len(f.sent)-1]
}
