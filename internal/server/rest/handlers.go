package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avekshin/authkeeper/internal/common"
	"github.com/avekshin/authkeeper/internal/server/models"
	"github.com/avekshin/authkeeper/internal/server/services"
)

// accountView is the external shape of an account. The password hash and the
// refresh-token slot never appear here.
type accountView struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	Username        string            `json:"username,omitempty"`
	Providers       []models.Provider `json:"providers"`
	IsEmailVerified bool              `json:"isEmailVerified"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func viewOf(a *models.Account) accountView {
	return accountView{
		ID:              a.ID,
		Email:           a.Email,
		Username:        a.Username,
		Providers:       a.Providers,
		IsEmailVerified: a.IsEmailVerified,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type sessionResponse struct {
	Account      accountView `json:"account"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: message})
}

// writeServiceError translates the service sentinels into HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "email already taken")
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired),
		errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrChallengeNotFound),
		errors.Is(err, common.ErrChallengeExpired),
		errors.Is(err, common.ErrProviderNoEmail):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	account, pair, err := s.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.logger.Error(r.Context(), "registration failed", "error", err)
		writeServiceError(w, err)
		return
	}

	// kick off email verification; a failed send must not fail registration
	if err := s.challenges.RequestChallenge(r.Context(), account.ID, models.PurposeEmailVerification); err != nil {
		s.logger.Warn(r.Context(), "verification email not sent", "account_id", account.ID, "error", err)
	}

	s.logger.Info(r.Context(), "account registered", "account_id", account.ID)
	writeSuccess(w, http.StatusCreated, "User registered successfully", sessionResponse{
		Account:      viewOf(account),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	account, pair, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User login successfully", sessionResponse{
		Account:      viewOf(account),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Token refreshed successfully", map[string]string{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), accountID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User logged out successfully", nil)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.challenges.RequestChallengeByEmail(r.Context(), req.Email, models.PurposeForgotPassword)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		writeServiceError(w, err)
		return
	}
	if errors.Is(err, common.ErrNotFound) {
		// same response as success, so the endpoint cannot be used to
		// probe which emails are registered
		s.logger.Info(r.Context(), "forgot-password for unknown email")
	}

	writeSuccess(w, http.StatusOK, "If the email is registered, a code has been sent", nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		OTP      string `json:"otp"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	if err := s.challenges.ResetPassword(r.Context(), req.Email, req.OTP, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

func (s *Server) handleRequestChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Purpose models.Purpose `json:"purpose"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !models.ValidPurpose(req.Purpose) {
		writeError(w, http.StatusBadRequest, "unknown challenge purpose")
		return
	}

	if err := s.challenges.RequestChallenge(r.Context(), accountID(r), req.Purpose); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Code sent", nil)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OTP string `json:"otp"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.challenges.VerifyChallenge(r.Context(), accountID(r), req.OTP, models.PurposeEmailVerification); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Email verified successfully", nil)
}

func (s *Server) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OTP      string `json:"otp"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	if err := s.challenges.SetPassword(r.Context(), accountID(r), req.OTP, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password set successfully", nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	account, err := s.auth.GetProfile(r.Context(), accountID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User profile fetched successfully", viewOf(account))
}

// handleFederatedCallback receives the verified identity tuple from the
// provider gateway once its OAuth handshake has completed. The handshake
// itself lives outside this process; only providers with configured
// credentials are accepted here.
func (s *Server) handleFederatedCallback(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(r.PathValue("provider"))
	if !s.providers[provider] {
		writeError(w, http.StatusNotFound, "unknown or disabled provider")
		return
	}

	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	account, pair, err := s.auth.FederatedLogin(r.Context(), services.FederatedAssertion{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Provider:    provider,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "User login successfully", sessionResponse{
		Account:      viewOf(account),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}
