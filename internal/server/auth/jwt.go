// Package auth mints and verifies the signed session tokens. Access and
// refresh tokens are signed with independent secrets so a leaked access
// token can never mint new sessions and a leaked refresh token can never
// pass access checks.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/server/models"
)

// AccessClaims is the payload carried by access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// RefreshClaims is the payload carried by refresh tokens. It deliberately
// carries nothing but the account identity: the stored single-slot value on
// the account decides whether the token is still live.
type RefreshClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
}

// Manager issues and verifies token pairs. It is stateless: persisting the
// refresh token into the account's slot is the caller's job.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewManager constructs a Manager from the two signing secrets and lifetimes.
func NewManager(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccessToken signs a short-lived access token embedding the account id,
// email and the issue/expiry instants.
func (m *Manager) IssueAccessToken(account *models.Account) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		AccountID: account.ID,
		Email:     account.Email,
	})

	return token.SignedString(m.accessSecret)
}

// IssueRefreshToken signs a longer-lived refresh token for the account. The
// jti claim makes every issued token distinct, so tokens minted within the
// same second are still distinguishable in the stored slot.
func (m *Manager) IssueRefreshToken(account *models.Account) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		AccountID: account.ID,
	})

	return token.SignedString(m.refreshSecret)
}

// VerifyAccessToken checks signature and expiry and returns the claims.
func (m *Manager) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenString, claims, m.accessSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry and returns the account id
// the token was issued to. Whether that token is still the account's live
// one is decided by the caller against the stored slot.
func (m *Manager) VerifyRefreshToken(tokenString string) (string, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenString, claims, m.refreshSecret); err != nil {
		return "", err
	}
	if claims.AccountID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.AccountID, nil
}

func (m *Manager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}

	return nil
}
