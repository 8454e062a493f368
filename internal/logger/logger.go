// Package logger provides structured logging configuration using zerolog.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with the specified level and format.
// format is "console" (default) or "json".
func Init(level, format string) {
	InitWriter(os.Stdout, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(out io.Writer, level, format string) {
	var w io.Writer = out
	if format != "json" {
		// Use console writer for human-readable output
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006/01/02 15:04:05"}
	}

	log.Logger = zerolog.New(w).
		With().
		Timestamp().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns a logger instance
func Get() *zerolog.Logger {
	return &log.Logger
}
