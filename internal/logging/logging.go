// Package logging builds the process-wide slog logger. Output format
// follows LOG_FORMAT (text/json), falling back to TTY detection, and the
// level follows LOG_LEVEL. Source locations are included with paths
// shortened relative to the working directory.
package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// New creates a configured logger writing to stdout.
func New() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	wd, _ := os.Getwd()

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.SourceKey {
				return a
			}
			src, ok := a.Value.Any().(*slog.Source)
			if !ok {
				return a
			}
			if rel, err := filepath.Rel(wd, src.File); err == nil {
				src.File = rel
			} else {
				src.File = filepath.Base(src.File)
			}
			return a
		},
	}

	if useTextFormat() {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// SetDefault creates a logger and installs it as the slog default,
// returning it for direct use.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

func useTextFormat() bool {
	switch os.Getenv("LOG_FORMAT") {
	case "text":
		return true
	case "json":
		return false
	}
	return isTerminal(os.Stdout)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
