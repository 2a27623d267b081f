package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Loggers write structured JSON to stdout, one sub-logger per
// component so log lines can be filtered by the part of the engine
// that emitted them. The level is global and read once, from
// PERP_LOG_LEVEL; anything unparseable falls back to info.
func NewLogger(component string) zerolog.Logger {
	return newLogger(os.Stdout, component, levelFromEnv())
}

func newLogger(w io.Writer, component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func levelFromEnv() zerolog.Level {
	raw := os.Getenv("PERP_LOG_LEVEL")
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func init() {
	// Microsecond timestamps; funding accrual is per-second and two
	// actions in the same second must still order in the log.
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
