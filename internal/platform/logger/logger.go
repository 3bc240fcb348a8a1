// Package logger provides structured logging functionality for the application.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/yizhengyuan/Traffic-AutoLabel/internal/config"
)

// Setup initializes and configures the application's logging system based on
// the provided configuration. It creates a structured JSON logger with the
// appropriate log level and sets it as the default logger for the application.
//
// When cfg.LogFile is set, records are fanned out to both stdout and the file,
// so interactive runs stay readable while long labeling runs keep a persistent
// record.
func Setup(cfg config.ServerConfig) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}

	handler := slog.Handler(slog.NewJSONHandler(os.Stdout, opts))

	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %q: %w", cfg.LogFile, err)
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(file, opts))
	}

	logger := slog.New(handler)

	// Set this logger as the default for the application so the package-level
	// slog functions (slog.Info, slog.Error, etc.) use the same handler.
	slog.SetDefault(logger)

	return logger, nil
}

// parseLevel converts the configured log level to a slog.Level
// (case-insensitive). Unknown values fall back to info with a warning.
func parseLevel(configured string) slog.Level {
	switch strings.ToLower(configured) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		// Create a temporary logger to output the warning since the real
		// handler is not built yet.
		tmpLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmpLogger.Warn("invalid log level configured, using default level",
			"configured_level", configured,
			"default_level", "info")
		return slog.LevelInfo
	}
}
