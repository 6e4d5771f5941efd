package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger creates the root logger: text (or JSON) to stderr and, when
// logging.file is set, JSON to that file as well. The returned cleanup closes
// the file.
func SetupLogger(lc LoggingConfig, verbose bool) (*slog.Logger, func() error, error) {
	level := ParseLevel(lc.Level)
	if verbose {
		level = slog.LevelDebug
	}

	if lc.File == "" {
		return slog.New(stderrHandler(os.Stderr, lc.Format, level)), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	return SetupLoggerWithWriters(os.Stderr, file, lc.Format, level), file.Close, nil
}

// SetupLoggerWithWriters fans log records out to stderr and a JSON file writer.
func SetupLoggerWithWriters(stderr, file io.Writer, format string, level slog.Level) *slog.Logger {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderrHandler(stderr, format, level), fileHandler))
}

func stderrHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
