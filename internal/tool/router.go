package tool

import (
	"net/http"
	"time"

	"github.com/fundergrid/research-service/internal/analytics"
	"github.com/fundergrid/research-service/pkg/health"
	"github.com/fundergrid/research-service/pkg/metrics"
	"github.com/fundergrid/research-service/pkg/middleware"
)

// RouterOptions carries the optional route collaborators.
type RouterOptions struct {
	Checker        *health.Checker
	Aggregator     *analytics.Aggregator
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// NewRouter builds the full HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST /tools/search        → search tool
//	POST /tools/fetch         → fetch tool
//	POST /tools/evaluate      → evaluate tool
//	GET  /handshake           → console discovery metadata
//	GET  /mcp/handshake       → alias
//	GET  /list                → tool listing
//	GET  /mcp/list            → alias
//	GET  /analytics           → tool usage summary (when enabled)
//	GET  /cache/stats         → search cache counters
//	POST /cache/invalidate    → flush the search cache
//	GET  /health/live         → liveness
//	GET  /health/ready        → readiness
//
// Middleware chain (outermost first): RequestID → Metrics → Timeout.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tools/search", h.Search)
	mux.HandleFunc("POST /tools/fetch", h.Fetch)
	mux.HandleFunc("POST /tools/evaluate", h.Evaluate)

	mux.HandleFunc("GET /handshake", h.Handshake)
	mux.HandleFunc("GET /mcp/handshake", h.Handshake)
	mux.HandleFunc("GET /list", h.ListTools)
	mux.HandleFunc("GET /mcp/list", h.ListTools)

	mux.HandleFunc("GET /cache/stats", h.CacheStats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)

	if opts.Aggregator != nil {
		mux.HandleFunc("GET /analytics", opts.Aggregator.SummaryHandler())
	}
	if opts.Checker != nil {
		mux.HandleFunc("GET /health/live", opts.Checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Checker.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.RequestTimeout > 0 {
		chain = middleware.Timeout(opts.RequestTimeout)(chain)
	}
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.RequestID()(chain)
	return chain
}
