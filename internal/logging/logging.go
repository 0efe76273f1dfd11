// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLogLevel converts a level name to a slog.Level. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// New returns a JSON logger writing to w at the named level. An unknown
// level falls back to info and is reported as an error.
func New(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLogLevel(level)

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), err
}

// Setup installs New(w, level) as the slog default logger and returns it.
func Setup(w io.Writer, level string) (*slog.Logger, error) {
	logger, err := New(w, level)
	slog.SetDefault(logger)

	return logger, err
}
