// Package common defines shared constants and sentinel errors used across
// authkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporarily unavailable")

	// Credential errors.
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// Token lifecycle errors (invalid, malformed, superseded or expired).
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Challenge errors. Wrong code and missing challenge are deliberately
	// the same value so callers cannot probe which codes exist.
	ErrChallengeNotFound = errors.New("invalid code or already used")
	ErrChallengeExpired  = errors.New("code expired")

	// Federated provider errors.
	ErrProviderNoEmail = errors.New("provider assertion carries no email")
)
