// Package reqctx carries per-request values (request id and the
// request-scoped logger) through a workflow's context.
package reqctx

import (
	"context"
	"log/slog"
)

type contextKey string

const requestIDKey contextKey = "request_id"
const loggerKey contextKey = "logger"

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context. Returns "" if not set.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLogger binds a request-scoped logger to the context. A nil logger
// returns ctx unchanged.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, l)
}

// Logger returns the request-scoped logger, or fallback when none is
// bound. A nil fallback means slog.Default().
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
