// Package logging builds the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options selects the handler.
type Options struct {
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string
	// Format is json, text or pretty. Empty picks pretty when out is a terminal.
	Format string
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler returns a handler writing to out.
func NewHandler(out io.Writer, opts Options) slog.Handler {
	level := ParseLevel(opts.Level)

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
		if isTerminal(out) {
			format = "pretty"
		}
	}

	switch format {
	case "pretty":
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		})
	case "text":
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	default:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}
}

// Setup installs a handler on stderr as the slog default and returns the logger.
func Setup(opts Options) *slog.Logger {
	logger := slog.New(NewHandler(os.Stderr, opts))
	slog.SetDefault(logger)
	return logger
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
