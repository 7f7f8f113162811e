// Package logger configures process-wide structured logging (slog) and
// carries request IDs through contexts for request-scoped log records.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type requestIDKey struct{}

var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Setup installs the default slog handler. Called exactly once by the
// process entry point; everything else derives loggers from the default.
// Unknown levels fall back to info, unknown formats to JSON.
func Setup(level string, format string) {
	lv, ok := levelNames[strings.ToLower(level)]
	if !ok {
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithRequestID stores a request ID in the context for RequestID and
// FromContext to pick up.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID stored in ctx, or "" when absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns the default logger, annotated with the request ID
// when one is present in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}
