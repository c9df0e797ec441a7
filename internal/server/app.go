// Package server initializes and runs the identity service: it opens the
// database, runs migrations, wires the services and serves the HTTP endpoint
// until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avekshin/authkeeper/internal/logging"
	"github.com/avekshin/authkeeper/internal/server/auth"
	"github.com/avekshin/authkeeper/internal/server/config"
	"github.com/avekshin/authkeeper/internal/server/mail"
	"github.com/avekshin/authkeeper/internal/server/models"
	"github.com/avekshin/authkeeper/internal/server/password"
	"github.com/avekshin/authkeeper/internal/server/repositories/repomanager"
	"github.com/avekshin/authkeeper/internal/server/rest"
	"github.com/avekshin/authkeeper/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	restServer  *rest.Server
}

// NewApp wires the application from config. Misconfigured signing secrets are
// the one fatal condition: the process must not start with them.
func NewApp(cfg *config.Config) (*App, error) {
	s := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(s)

	if err := validateSecrets(cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("repomanager init error: %w", err)
	}

	tokens := auth.NewManager(
		[]byte(cfg.AccessTokenSecret), []byte(cfg.RefreshTokenSecret),
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	hasher := password.NewHasher()
	mailer := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)

	resolver := services.NewResolver(db, rm, logger)
	authSvc := services.NewAuthService(db, rm, tokens, hasher, resolver, logger)
	challengeSvc := services.NewChallengeService(db, rm, hasher, mailer, logger, cfg.ChallengeTTL, cfg.OTPDigits)

	restServer := rest.NewServer(cfg.EndpointAddr, authSvc, challengeSvc, tokens, enabledProviders(cfg), logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		repomanager: rm,
		restServer:  restServer,
	}, nil
}

func validateSecrets(cfg *config.Config) error {
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return errors.New("token signing secrets must be configured")
	}
	return nil
}

// enabledProviders derives the accepted federated providers from the
// configured client credentials.
func enabledProviders(cfg *config.Config) map[models.Provider]bool {
	providers := map[models.Provider]bool{}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers[models.ProviderGoogle] = true
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers[models.ProviderGitHub] = true
	}
	return providers
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, "migrations failed", "error", err)
		return
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.restServer.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
