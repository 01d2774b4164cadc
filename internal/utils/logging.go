package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a new logger with the specified level.
// Debug mode writes human-readable console lines, otherwise JSON goes to stderr.
func NewLogger(debug bool) (*zerolog.Logger, error) {
	return newLogger(os.Stderr, debug), nil
}

func newLogger(w io.Writer, debug bool) *zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &l
}

// NopLogger returns a logger that discards everything
func NopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
