package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avekshin/authkeeper/internal/server/config"
	"github.com/avekshin/authkeeper/internal/server/models"
)

func TestNewApp_MissingSecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AccessTokenSecret = ""

	_, err := NewApp(cfg)
	assert.Error(t, err)
}

func TestEnabledProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	assert.Empty(t, enabledProviders(cfg))

	cfg.GoogleClientID = "id"
	cfg.GoogleClientSecret = "secret"
	cfg.GitHubClientID = "id-only" // secret missing, stays disabled

	providers := enabledProviders(cfg)
	assert.True(t, providers[models.ProviderGoogle])
	assert.False(t, providers[models.ProviderGitHub])
}
