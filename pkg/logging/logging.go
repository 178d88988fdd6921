// Package logging provides structured logging for tarsplit using zerolog.
//
// Logs go to stderr so that stdout stays free for command output such as
// dry-run plans and locate results.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger *zerolog.Logger
	pretty bool
)

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger to write to stderr.
// If verbose is true, sets log level to Debug so every committed entry is logged.
// If human is true, uses a human-friendly console writer and adds
// human-readable companion fields to completion events.
func Init(verbose bool, human bool) {
	InitWriter(os.Stderr, verbose, human)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, verbose bool, human bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if human {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	pretty = human

	l := zerolog.New(w).With().Timestamp().Logger()
	logger = &l
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// IsPrettyMode reports whether human-readable companion fields are emitted.
func IsPrettyMode() bool {
	return pretty
}

// WithPhase returns a logger with the phase field set.
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger replaces the global logger.
func SetLogger(l zerolog.Logger) {
	logger = &l
}
