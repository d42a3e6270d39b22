package main

import (
	"io"
	"log/slog"

	"outbreak/internal/config"
)

// newLogger builds the process logger from the logging config
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	logOpts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, logOpts))
	}
	return slog.New(slog.NewTextHandler(w, logOpts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
