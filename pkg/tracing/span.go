// Package tracing provides lightweight operation spans that travel through
// Go contexts and are emitted as structured slog records when they end.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ctxKey struct{}

// Span is a timed operation. Attributes may be attached from any goroutine
// until End is called; End emits the span exactly once.
type Span struct {
	name    string
	traceID string
	started time.Time

	mu    sync.Mutex
	attrs []slog.Attr
	once  sync.Once
}

// StartSpan begins a span and stores it in the returned context so deeper
// layers can attach attributes through FromContext.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	s := &Span{name: name, traceID: traceID, started: time.Now()}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// FromContext returns the active span in ctx, or nil when there is none.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

// SetAttr attaches a key/value pair to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// End emits the span as a debug record with its duration and attributes.
func (s *Span) End() {
	s.once.Do(func() {
		elapsed := time.Since(s.started)
		s.mu.Lock()
		attrs := make([]slog.Attr, 0, len(s.attrs)+3)
		attrs = append(attrs,
			slog.String("span", s.name),
			slog.String("trace_id", s.traceID),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
		attrs = append(attrs, s.attrs...)
		s.mu.Unlock()
		slog.LogAttrs(context.Background(), slog.LevelDebug, "span completed", attrs...)
	})
}
