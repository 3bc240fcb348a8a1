package logger

import (
	"context"
	"log/slog"
)

// loggerKey is the context key for request-scoped loggers.
type loggerKey struct{}

// WithLogger returns a context carrying the given logger. Handlers up the
// chain retrieve it with FromContext so request-scoped attributes (trace
// ID, component) follow the request.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil")
	}
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored in the context, or nil when the
// context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	log, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return log
}

// FromContextOrDefault returns the context's logger, falling back to def
// when the context carries none.
func FromContextOrDefault(ctx context.Context, def *slog.Logger) *slog.Logger {
	if log := FromContext(ctx); log != nil {
		return log
	}
	return def
}
