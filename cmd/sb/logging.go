package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredjeanlab/shoutboard/internal/config"
)

// newLogger returns a console logger in development and JSON otherwise.
func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(parseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("instance", cfg.InstanceID).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
