// Package rest exposes the service operations over an HTTP JSON API.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/avekshin/authkeeper/internal/logging"
	"github.com/avekshin/authkeeper/internal/server/auth"
	"github.com/avekshin/authkeeper/internal/server/models"
	"github.com/avekshin/authkeeper/internal/server/services"
)

// Server serves the public HTTP endpoint. It owns no business logic: handlers
// decode requests, call the services and translate sentinel errors to HTTP
// statuses.
type Server struct {
	address    string
	auth       *services.AuthService
	challenges *services.ChallengeService
	tokens     *auth.Manager
	providers  map[models.Provider]bool
	logger     logging.Logger
}

// NewServer wires the HTTP surface. providers lists the federated providers
// with configured credentials; callbacks for others are rejected.
func NewServer(address string, authSvc *services.AuthService, challengeSvc *services.ChallengeService,
	tokens *auth.Manager, providers map[models.Provider]bool, logger logging.Logger) *Server {
	return &Server{
		address:    address,
		auth:       authSvc,
		challenges: challengeSvc,
		tokens:     tokens,
		providers:  providers,
		logger:     logger.With("module", "rest_server"),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", s.handleResetPassword)
	mux.HandleFunc("POST /api/auth/federated/{provider}", s.handleFederatedCallback)

	mux.Handle("POST /api/auth/logout", s.requireAccessToken(s.handleLogout))
	mux.Handle("POST /api/auth/request-challenge", s.requireAccessToken(s.handleRequestChallenge))
	mux.Handle("POST /api/auth/verify-email", s.requireAccessToken(s.handleVerifyEmail))
	mux.Handle("POST /api/auth/set-password", s.requireAccessToken(s.handleSetPassword))
	mux.Handle("GET /api/users/profile", s.requireAccessToken(s.handleProfile))

	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.address,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
