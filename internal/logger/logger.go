package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Development gets a human readable console
// writer, every other environment logs JSON lines to stdout.
func New(appEnv string, level string) zerolog.Logger {
	return newWithWriter(appEnv, level, os.Stdout)
}

func newWithWriter(appEnv string, level string, out io.Writer) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}

	var w io.Writer = out
	if appEnv == "development" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return zerolog.New(w).Level(parsed).With().Timestamp().Logger()
}
