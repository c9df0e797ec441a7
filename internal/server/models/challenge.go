package models

import "time"

// Purpose scopes a one-time-code challenge to a single flow. An account
// holds at most one live challenge per purpose; requesting a new one
// supersedes the previous.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposeForgotPassword    Purpose = "forgot_password"
	PurposeSetPassword       Purpose = "set_password"
)

// ValidPurpose reports whether p is one of the known challenge purposes.
func ValidPurpose(p Purpose) bool {
	switch p {
	case PurposeEmailVerification, PurposeForgotPassword, PurposeSetPassword:
		return true
	}
	return false
}

// Challenge is a short-lived one-time code bound to (account, purpose).
// Code is only meaningful within that scope; Token is a long opaque value
// minted alongside it for link-based verification. Expiry is checked lazily
// at verification time.
type Challenge struct {
	ID        string
	AccountID string
	Purpose   Purpose
	Code      string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
