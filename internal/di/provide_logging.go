package di

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ProvideLogger creates a new zerolog.Logger configured for the runtime environment.
// With LOG_FORMAT=json (CI pipelines) it writes JSON; otherwise it uses the
// console writer. LOG_LEVEL sets the level, info by default. Logs go to stderr
// so synthesized templates on stdout stay clean.
func ProvideLogger() zerolog.Logger {
	return newLogger(os.Stderr, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
