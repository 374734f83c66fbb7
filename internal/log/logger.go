package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Production writes JSON lines, everything
// else gets a human readable console writer. An empty or unknown level
// falls back to info in production and debug elsewhere.
func New(environment, service, level string) zerolog.Logger {
	var output io.Writer = os.Stdout
	if environment != "production" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(environment, level))

	return zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Str("service", service).
		Logger()
}

func parseLevel(environment, level string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	if environment == "production" {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
