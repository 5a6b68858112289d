package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jrsteele09/kay-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevelAndService(t *testing.T) {
	config.ResetFile()
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SERVICE_NAME", "gw-test")

	var buf bytes.Buffer
	logger := newLogger(&buf, config.EnvVars{})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "gw-test", line["service"])
	assert.Equal(t, "shown", line["message"])
}

func TestNewLoggerBadLevelDefaultsToInfo(t *testing.T) {
	config.ResetFile()
	t.Setenv("LOG_LEVEL", "loud")

	var buf bytes.Buffer
	logger := newLogger(&buf, config.EnvVars{})
	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestRedactedToken(t *testing.T) {
	tok := RedactedToken("super-secret")
	assert.Equal(t, "[REDACTED]", fmt.Sprint(tok))

	var buf bytes.Buffer
	logger := newLogger(&buf, config.EnvVars{})
	logger.Info().Stringer("token", tok).Msg("x")
	assert.NotContains(t, buf.String(), "super-secret")
}
