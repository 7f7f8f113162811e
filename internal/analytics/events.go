// Package analytics tracks tool usage. A Collector buffers tool-call events
// and publishes them to Kafka; an Aggregator consumes the topic and serves
// usage summaries. Both are optional: the tool surface works identically
// with a nil collector.
package analytics

import "time"

// ToolEvent describes one tool invocation.
type ToolEvent struct {
	Tool        string    `json:"tool"`
	ResultCount int       `json:"result_count"`
	CacheHit    bool      `json:"cache_hit"`
	Outcome     string    `json:"outcome"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	RequestID   string    `json:"request_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
