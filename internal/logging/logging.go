package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the process-wide logger. Format "console" gives
// human-readable output for interactive use; anything else keeps the
// machine-readable JSON default.
func Setup(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithReport derives a child logger carrying the identifiers shared by every
// log line of one report run.
func WithReport(conversationID, reportID string) zerolog.Logger {
	return log.With().
		Str("conversation_id", conversationID).
		Str("report_id", reportID).
		Logger()
}
