package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/kay-gateway/internal/config"
)

// NewLogger creates a structured zerolog.Logger for the gateway. DEV builds
// log to a human readable console writer.
func NewLogger(cfg config.EnvConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.GetEnv() == "DEV" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return newLogger(out, cfg)
}

func newLogger(out io.Writer, cfg config.EnvConfig) zerolog.Logger {
	ctx := zerolog.New(out).With().Timestamp()
	if name := cfg.GetServiceName(); name != "" {
		ctx = ctx.Str("service", name)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}

// RedactedToken keeps secret material out of log lines and error strings.
type RedactedToken string

func (RedactedToken) String() string {
	return "[REDACTED]"
}

func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
