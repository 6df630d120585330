package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 30, cfg.AccessTokenMinutes)
	assert.Equal(t, 30, cfg.RefreshTokenDays)
	assert.Equal(t, "/api/v1", cfg.APIV1Prefix)
	assert.Equal(t, "http://localhost:4200", cfg.FrontendURL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BODEGA_HTTP_ADDR", ":9999")
	t.Setenv("BODEGA_DATABASE_URL", "postgres://example/db")
	t.Setenv("BODEGA_ACCESS_TOKEN_MINUTES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "postgres://example/db", cfg.DatabaseURL)
	assert.Equal(t, 5, cfg.AccessTokenMinutes)
}
