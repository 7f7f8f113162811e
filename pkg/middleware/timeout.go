package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Timeout returns middleware that cancels the request context after the
// given duration and answers 504 if the handler has not claimed the
// response by then. The response is claimed atomically, so a handler that
// finishes just as the deadline fires never interleaves with the timeout
// body.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			cw := &claimedWriter{rw: w}
			finished := make(chan struct{})
			go func() {
				defer close(finished)
				next.ServeHTTP(cw, r.WithContext(ctx))
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				if cw.claim() {
					slog.Warn("request timed out",
						"method", r.Method,
						"path", r.URL.Path,
						"limit", limit,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":"request timeout","kind":"internal"}`))
				}
			}
		})
	}
}

// claimedWriter hands the underlying ResponseWriter to whichever side —
// handler or timeout — writes first, and discards writes from the loser.
type claimedWriter struct {
	rw      http.ResponseWriter
	claimed atomic.Bool
	owned   bool
}

// claim reserves the response for the timeout path. It returns false when
// the handler already started writing.
func (cw *claimedWriter) claim() bool {
	return cw.claimed.CompareAndSwap(false, true)
}

func (cw *claimedWriter) Header() http.Header {
	return cw.rw.Header()
}

func (cw *claimedWriter) WriteHeader(code int) {
	if cw.owned || cw.claimed.CompareAndSwap(false, true) {
		cw.owned = true
		cw.rw.WriteHeader(code)
	}
}

func (cw *claimedWriter) Write(b []byte) (int, error) {
	if cw.owned || cw.claimed.CompareAndSwap(false, true) {
		cw.owned = true
		return cw.rw.Write(b)
	}
	return len(b), nil
}
