// Package models contains the server-side domain records persisted by the
// repositories. Sensitive fields (password hash, refresh token) never leave
// the service layer in external representations.
package models

import "time"

// Provider tags an authentication method linked to an account.
type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "google"
	ProviderGitHub   Provider = "github"
)

// Account is the durable credential record. Providers is a set: it is
// non-empty from creation onward and only ever grows. RefreshToken is the
// single live refresh token slot; it is overwritten on login/refresh and
// cleared on logout or credential change.
type Account struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    string // empty for accounts created purely via a federated provider
	Providers       []Provider
	IsEmailVerified bool
	RefreshToken    string `json:"-"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasProvider reports whether the account is already linked to p.
func (a *Account) HasProvider(p Provider) bool {
	for _, existing := range a.Providers {
		if existing == p {
			return true
		}
	}
	return false
}
