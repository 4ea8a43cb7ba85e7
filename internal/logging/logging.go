// Package logging builds the zerolog logger shared by every stage.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger settings.
type Config struct {
	// Level is one of trace, debug, info, warn, error (default info).
	Level string

	// Format is "console" for human-readable lines or "json".
	Format string

	// Output defaults to stderr so progress lines on stdout stay clean.
	Output io.Writer
}

// New returns a logger for cfg. An unknown level is an error.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var zl zerolog.Logger
	switch cfg.Format {
	case "", "console":
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	case "json":
		zl = zerolog.New(out)
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format %q: use console or json", cfg.Format)
	}

	return zl.Level(level).With().Timestamp().Logger(), nil
}
