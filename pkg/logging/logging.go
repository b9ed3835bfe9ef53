// Package logging builds the loggers used across the engine: slog for
// the public facade and logrus for the storage internals.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/sirupsen/logrus"
)

// New returns a colorized terminal logger writing to stderr.
func New(level slog.Level) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  level <= slog.LevelDebug,
	})
	return slog.New(handler)
}

// NewStoreLogger returns the logrus logger the storage layer uses,
// leveled to roughly match the given slog level.
func NewStoreLogger(level slog.Level) *logrus.Logger {
	log := logrus.New()
	switch {
	case level <= slog.LevelDebug:
		log.SetLevel(logrus.DebugLevel)
	case level <= slog.LevelInfo:
		log.SetLevel(logrus.InfoLevel)
	case level <= slog.LevelWarn:
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.ErrorLevel)
	}
	return log
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
