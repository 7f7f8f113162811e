// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ToolCallsTotal       *prometheus.CounterVec
	ToolCallDuration     *prometheus.HistogramVec
	SearchHits           prometheus.Histogram
	EvaluationRunsTotal  *prometheus.CounterVec
	PacketsProcessed     prometheus.Counter
	PacketsInFlight      prometheus.Gauge
	PacketQuality        prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	RecordsLoaded        prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by method and path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_calls_total",
				Help: "Total tool invocations by tool name and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_duration_seconds",
				Help:    "Tool call latency by tool name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		SearchHits: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_hits",
				Help:    "Distribution of result counts per search.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		EvaluationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evaluation_runs_total",
				Help: "Total evaluation runs by outcome.",
			},
			[]string{"outcome"},
		),
		PacketsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "evaluation_packets_processed_total",
				Help: "Total packets drawn from traversal and processed.",
			},
		),
		PacketsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "evaluation_packets_in_flight",
				Help: "Number of packet tasks currently admitted.",
			},
		),
		PacketQuality: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evaluation_packet_quality",
				Help:    "Distribution of packet quality scores.",
				Buckets: []float64{0, 1.0 / 3, 2.0 / 3, 1},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total search cache misses.",
			},
		),
		RecordsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "records_loaded",
				Help: "Number of records held by the store.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.SearchHits,
		m.EvaluationRunsTotal,
		m.PacketsProcessed,
		m.PacketsInFlight,
		m.PacketQuality,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RecordsLoaded,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
