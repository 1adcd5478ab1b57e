package cmd

import (
	"os"

	"github.com/rs/zerolog"
)

// logger writes structured events to stderr so stdout stays clean for
// command output and piped JSON.
var logger = newLogger()

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if v := os.Getenv("DGT_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
