package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/fundergrid/research-service/pkg/kafka"
)

// ToolStats accumulates usage numbers for a single tool.
type ToolStats struct {
	Calls          int64 `json:"calls"`
	Failures       int64 `json:"failures"`
	CacheHits      int64 `json:"cache_hits"`
	TotalLatencyMs int64 `json:"total_latency_ms"`
}

// Aggregator consumes the tool-event topic and keeps in-memory usage
// summaries.
type Aggregator struct {
	consumer *kafka.Consumer
	mu       sync.RWMutex
	stats    map[string]*ToolStats
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator; wire its Handle method into a
// kafka.Consumer before calling Start.
func NewAggregator() *Aggregator {
	return &Aggregator{
		stats:  make(map[string]*ToolStats),
		logger: slog.Default().With("component", "analytics-aggregator"),
	}
}

// Attach sets the consumer driving this aggregator.
func (a *Aggregator) Attach(consumer *kafka.Consumer) {
	a.consumer = consumer
}

// Start runs the underlying consumer until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		<-ctx.Done()
		return nil
	}
	return a.consumer.Start(ctx)
}

// Handle is the kafka.MessageHandler that folds one event into the stats.
func (a *Aggregator) Handle(ctx context.Context, key []byte, value []byte) error {
	var event ToolEvent
	if err := json.Unmarshal(value, &event); err != nil {
		a.logger.Warn("skipping malformed tool event", "error", err)
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	stats, ok := a.stats[event.Tool]
	if !ok {
		stats = &ToolStats{}
		a.stats[event.Tool] = stats
	}
	stats.Calls++
	if event.Outcome != "ok" {
		stats.Failures++
	}
	if event.CacheHit {
		stats.CacheHits++
	}
	stats.TotalLatencyMs += event.LatencyMs
	return nil
}

// Snapshot returns a copy of the current per-tool stats.
func (a *Aggregator) Snapshot() map[string]ToolStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]ToolStats, len(a.stats))
	for tool, stats := range a.stats {
		out[tool] = *stats
	}
	return out
}

// SummaryHandler serves the aggregated usage stats as JSON.
func (a *Aggregator) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"tools": a.Snapshot(),
		})
	}
}
