// Package util holds small process-wide helpers.
package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a JSON logger writing to w (stdout when nil). Unknown levels fall back to info.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

// NewConsoleLogger is NewLogger with human-readable output for interactive runs.
func NewConsoleLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
