package resilience

import (
	"context"
	"fmt"
	"time"
)

// OpTimeoutError reports that a named operation exceeded its time limit.
// It unwraps to context.DeadlineExceeded so callers can match either form.
type OpTimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *OpTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Limit)
}

func (e *OpTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout bounds a named operation. fn receives a context whose
// cancellation cause is an *OpTimeoutError when the limit fires, so the
// caller can distinguish the operation's own deadline from an inherited
// parent cancellation via context.Cause. A non-positive timeout runs fn
// unbounded. If fn ignores its context and keeps running past the limit,
// WithTimeout returns anyway and lets the goroutine unwind on its own.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	opCtx, cancel := context.WithTimeoutCause(ctx, timeout, &OpTimeoutError{Op: name, Limit: timeout})
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(opCtx) }()

	select {
	case err := <-result:
		return err
	case <-opCtx.Done():
		return context.Cause(opCtx)
	}
}
