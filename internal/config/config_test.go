package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config.ResetFile()
	c := config.New()

	assert.Equal(t, 8*time.Hour, c.GetSessionTokenTTL())
	assert.Equal(t, 30*24*time.Hour, c.GetCliRefreshTokenTTL())
	assert.Equal(t, 10*time.Minute, c.GetStateTTL())
	assert.Equal(t, 5*time.Minute, c.GetStateSweepInterval())
	assert.Equal(t, 5*time.Minute, c.GetTokenCacheTTL())
	assert.Equal(t, 30*time.Second, c.GetTokenExpiryMargin())
	assert.Equal(t, ":8080", c.GetPort())
	assert.Equal(t, "DEV", c.GetEnv())
	assert.Equal(t, "http://localhost:8080/oauth/callback", c.GetOAuthRedirectURL())
	assert.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:3000"))
}

func TestEnvironmentOverrides(t *testing.T) {
	config.ResetFile()
	t.Setenv("PORT", ":9090")
	t.Setenv("OAUTH_STATE_TTL", "2m")
	t.Setenv("SESSION_TOKEN_TTL", "not-a-duration")
	t.Setenv("BASE_URL", "https://gw.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	c := config.New()
	assert.Equal(t, ":9090", c.GetPort())
	assert.Equal(t, 2*time.Minute, c.GetStateTTL())
	assert.Equal(t, 8*time.Hour, c.GetSessionTokenTTL())
	assert.Equal(t, "https://gw.example.com/oauth/callback", c.GetOAuthRedirectURL())
	assert.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	assert.False(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:3000"))
}

func TestAllowedOriginsNormalised(t *testing.T) {
	config.ResetFile()
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://App.Example.com/, https://b.example.com")
	t.Setenv("CORS_ALLOWED_HEADERS", "Authorization")

	c := config.New()
	origins := c.GetAllowedOrigins()
	assert.True(t, origins.IsAllowedOrigin("https://app.example.com"))
	assert.True(t, origins.IsAllowedOrigin("https://APP.example.com/"))
	assert.Equal(t, "https://app.example.com, https://b.example.com", origins.String())
	assert.Equal(t, "Authorization", c.GetAllowedHeaders())
}

func TestLoadFile(t *testing.T) {
	t.Cleanup(config.ResetFile)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("KYG_BASE_URL: https://kyg.example.com/\nAUTO_MIGRATE: true\nLOG_LEVEL: debug\n"), 0o600))
	require.NoError(t, config.LoadFile(path))

	t.Setenv("LOG_LEVEL", "warn")

	c := config.New()
	assert.Equal(t, "https://kyg.example.com", c.GetKYGBaseURL())
	assert.True(t, c.GetAutoMigrate())
	assert.Equal(t, "warn", c.GetLogLevel(), "environment wins over the file")
}

func TestLoadFileErrors(t *testing.T) {
	t.Cleanup(config.ResetFile)

	require.NoError(t, config.LoadFile(""))
	require.Error(t, config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o600))
	require.Error(t, config.LoadFile(path))
}
