package config

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		l = zerolog.InfoLevel
	}

	return zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("app_name", "sbb").
		Logger().
		Level(l)
}
