package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the process-wide zerolog logger and returns it. An
// unparseable level falls back to info. With pretty enabled the output is a
// human-readable console stream instead of JSON.
func Setup(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger().
		Hook(TracingHook{})

	log.Logger = logger
	return logger
}
