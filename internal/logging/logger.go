package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
)

// New builds the process logger. Console output is used outside production.
func New(conf *config.Config) zerolog.Logger {
	return NewWithWriter(conf, os.Stdout)
}

func NewWithWriter(conf *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(conf.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if conf.Log.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app", config.AppName).
		Logger()
}

// Component returns a child logger tagged with the subsystem name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
