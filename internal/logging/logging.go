// Package logging builds the zerolog logger every binary in this module
// shares, grounded on the teacher's own monitoring.NewLogger
// (ws/internal/single/monitoring/logger.go): structured JSON by default,
// a pretty console writer for local development, timestamps and caller
// info always on.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger for the named service ("ntserver", "ntclient"),
// parsing level and format the same way LOG_LEVEL/LOG_FORMAT do in
// internal/config.
func New(service, level, format string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(parseLevel(level))

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
