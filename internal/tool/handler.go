// Package tool exposes the search, fetch, and evaluate operations over HTTP,
// translating core error kinds into protocol-level failures, plus the
// handshake/list metadata routes reactive consoles use to discover the
// tools. The surface is deliberately thin: all semantics live in the store
// and the coordinator.
package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/fundergrid/research-service/internal/analytics"
	"github.com/fundergrid/research-service/internal/cache"
	"github.com/fundergrid/research-service/internal/eval"
	"github.com/fundergrid/research-service/internal/store"
	apperr "github.com/fundergrid/research-service/pkg/errors"
	"github.com/fundergrid/research-service/pkg/logger"
	"github.com/fundergrid/research-service/pkg/metrics"
	"github.com/fundergrid/research-service/pkg/tracing"
)

// ToolInfo describes one exposed tool for handshake and listing responses.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var toolCatalog = map[string]string{
	"search":   "Search records using the given method and return matching ids.",
	"fetch":    "Fetch a single record by id.",
	"evaluate": "Run the coordinated funder-variable evaluation and return the variable mapping.",
}

// Handler serves the tool surface.
type Handler struct {
	store        *store.Store
	coordinator  *eval.Coordinator
	searchCache  *cache.SearchCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	name         string
	instructions string
	logger       *slog.Logger
}

// Options carries the optional collaborators; any of Cache, Collector, and
// Metrics may be nil.
type Options struct {
	Cache        *cache.SearchCache
	Collector    *analytics.Collector
	Metrics      *metrics.Metrics
	Name         string
	Instructions string
	Logger       *slog.Logger
}

// New creates the tool handler.
func New(s *store.Store, c *eval.Coordinator, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default().With("component", "tool-handler")
	}
	return &Handler{
		store:        s,
		coordinator:  c,
		searchCache:  opts.Cache,
		collector:    opts.Collector,
		metrics:      opts.Metrics,
		name:         opts.Name,
		instructions: opts.Instructions,
		logger:       log,
	}
}

type searchRequest struct {
	Query  json.RawMessage `json:"query"`
	Method json.RawMessage `json:"method"`
}

type fetchRequest struct {
	ID json.RawMessage `json:"id"`
}

type evaluateRequest struct {
	Query json.RawMessage `json:"query"`
}

// Search handles POST /tools/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "tool.search")
	defer span.End()

	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		h.finishTool(ctx, w, "search", start, 0, false, err)
		return
	}
	query, err := requireString(req.Query, "query")
	if err != nil {
		h.finishTool(ctx, w, "search", start, 0, false, err)
		return
	}
	method, err := optionalString(req.Method, "method")
	if err != nil {
		h.finishTool(ctx, w, "search", start, 0, false, err)
		return
	}

	ids, cacheHit, err := h.searchIDs(ctx, query, method)
	if err != nil {
		h.finishTool(ctx, w, "search", start, 0, cacheHit, err)
		return
	}

	span.SetAttr("hits", len(ids))
	if h.metrics != nil {
		h.metrics.SearchHits.Observe(float64(len(ids)))
	}
	h.finishTool(ctx, w, "search", start, len(ids), cacheHit, nil)
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

// searchIDs runs the search and projects results to ids, skipping records
// whose id is blank, preserving result order. The cache, when present, is
// keyed on the raw query/method pair.
func (h *Handler) searchIDs(ctx context.Context, query string, method *string) ([]string, bool, error) {
	compute := func() ([]string, error) {
		results, err := h.store.Search(query, method)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(results))
		for _, rec := range results {
			if rec.ID == "" {
				continue
			}
			ids = append(ids, rec.ID)
		}
		return ids, nil
	}

	if h.searchCache == nil {
		ids, err := compute()
		return ids, false, err
	}
	methodKey := ""
	if method != nil {
		methodKey = *method
	}
	ids, hit, err := h.searchCache.GetOrCompute(ctx, query, methodKey, compute)
	if h.metrics != nil && err == nil {
		if hit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	return ids, hit, err
}

// Fetch handles POST /tools/fetch.
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "tool.fetch")
	defer span.End()

	var req fetchRequest
	if err := decodeBody(r, &req); err != nil {
		h.finishTool(ctx, w, "fetch", start, 0, false, err)
		return
	}
	id, err := requireString(req.ID, "id")
	if err != nil {
		h.finishTool(ctx, w, "fetch", start, 0, false, err)
		return
	}

	rec, err := h.store.Fetch(id)
	if err != nil {
		h.finishTool(ctx, w, "fetch", start, 0, false, err)
		return
	}
	span.SetAttr("id", rec.ID)
	h.finishTool(ctx, w, "fetch", start, 1, false, nil)
	writeJSON(w, http.StatusOK, rec)
}

// Evaluate handles POST /tools/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "tool.evaluate")
	defer span.End()

	query := (*string)(nil)
	if r.ContentLength != 0 {
		var req evaluateRequest
		if err := decodeBody(r, &req); err != nil {
			h.finishTool(ctx, w, "evaluate", start, 0, false, err)
			return
		}
		q, err := optionalString(req.Query, "query")
		if err != nil {
			h.finishTool(ctx, w, "evaluate", start, 0, false, err)
			return
		}
		query = q
	}

	vars, err := h.coordinator.Run(ctx, query)
	if err != nil {
		h.finishTool(ctx, w, "evaluate", start, 0, false, err)
		return
	}
	span.SetAttr("assigned_vars", len(vars))
	h.finishTool(ctx, w, "evaluate", start, len(vars), false, nil)
	writeJSON(w, http.StatusOK, vars)
}

// Handshake serves the console discovery payload.
func (h *Handler) Handshake(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         h.name,
		"instructions": h.instructions,
		"endpoints": map[string]string{
			"tools": "/tools",
			"list":  "/list",
		},
		"tools": listTools(),
	})
}

// ListTools serves the sorted tool listing.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": listTools(),
	})
}

// CacheStats serves hit/miss counters for the search cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.searchCache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.searchCache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"hits":    hits,
		"misses":  misses,
	})
}

// CacheInvalidate drops all cached search responses.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.searchCache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "deleted": 0})
		return
	}
	deleted, err := h.searchCache.Invalidate(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "deleted": deleted})
}

func listTools() []ToolInfo {
	tools := make([]ToolInfo, 0, len(toolCatalog))
	for name, description := range toolCatalog {
		tools = append(tools, ToolInfo{Name: name, Description: description})
	}
	sort.Slice(tools, func(a, b int) bool {
		return tools[a].Name < tools[b].Name
	})
	return tools
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, *tracing.Span) {
	ctx := r.Context()
	return tracing.StartSpan(ctx, name, logger.RequestID(ctx))
}

// finishTool records metrics, analytics, and (on failure) the error
// response for one tool call.
func (h *Handler) finishTool(ctx context.Context, w http.ResponseWriter, tool string, start time.Time, results int, cacheHit bool, err error) {
	latency := time.Since(start)
	outcome := "ok"
	kind := ""
	if err != nil {
		outcome = "error"
		kind = apperr.Kind(err)
	}

	if h.metrics != nil {
		h.metrics.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
		h.metrics.ToolCallDuration.WithLabelValues(tool).Observe(latency.Seconds())
	}
	if h.collector != nil {
		h.collector.Track(analytics.ToolEvent{
			Tool:        tool,
			ResultCount: results,
			CacheHit:    cacheHit,
			Outcome:     outcome,
			ErrorKind:   kind,
			LatencyMs:   latency.Milliseconds(),
			RequestID:   logger.RequestID(ctx),
			Timestamp:   time.Now().UTC(),
		})
	}
	if err != nil {
		logger.FromContext(ctx).Warn("tool call failed",
			"tool", tool,
			"kind", kind,
			"error", err,
		)
		h.writeError(ctx, w, err)
	}
}

// writeError translates a core error into the protocol response without
// hiding its kind: the original message and a machine-readable kind travel
// in the body.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatusCode(err), map[string]string{
		"error": err.Error(),
		"kind":  apperr.Kind(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.ErrInvalidType, "request body must be a JSON object")
	}
	return nil
}

// requireString enforces that the field was supplied as a JSON string.
// Missing, null, or non-string values are shape errors, distinct from
// validation failures on well-typed input.
func requireString(raw json.RawMessage, field string) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", apperr.Newf(apperr.ErrInvalidType, "%s must be provided as a string", field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", apperr.Newf(apperr.ErrInvalidType, "%s must be provided as a string", field)
	}
	return s, nil
}

// optionalString accepts absent or null values as nil, otherwise requires a
// JSON string.
func optionalString(raw json.RawMessage, field string) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	s, err := requireString(raw, field)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
