// Package obs configures the structured logger every other package
// logs through via log/slog. It picks a text handler for interactive
// terminals and a JSON handler for pipes, CI, and redirected output, so
// the same log call reads well in a terminal and parses cleanly in a
// log aggregator.
package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvLogLevel is the environment variable that overrides the default
// log level ("debug", "info", "warn", "error").
const EnvLogLevel = "OPENPACKAGE_LOG_LEVEL"

// NewLogger builds a slog.Logger writing to w. Format is chosen by
// whether w is an interactive terminal: isatty.IsTerminal picks a
// human-readable text handler, otherwise a JSON handler.
func NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// Default builds a logger writing to os.Stderr, the typical destination
// for a CLI's diagnostic output.
func Default() *slog.Logger {
	return NewLogger(os.Stderr)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvLogLevel)) {
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
