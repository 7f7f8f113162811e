// Package health aggregates dependency probes into liveness and readiness
// reports. Probes return plain errors; the checker classifies them as hard
// failures or degradations so an empty record store can stay ready while a
// dead database does not.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the state of one dependency or the service overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// ErrDegraded marks a probe failure that should not fail readiness. Wrap it
// (or return it directly) from a Probe to report a degraded component.
var ErrDegraded = errors.New("degraded")

// Probe checks one dependency. A nil return means up; an error wrapping
// ErrDegraded means degraded; any other error means down.
type Probe func(ctx context.Context) error

// ComponentHealth is the classified outcome of one probe.
type ComponentHealth struct {
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Report aggregates all component probes for one readiness evaluation.
type Report struct {
	Service    string                     `json:"service"`
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Checker runs registered probes concurrently with a shared per-evaluation
// timeout. Registration happens during startup wiring, before the HTTP
// surface is up, so lookups take no lock.
type Checker struct {
	service string
	timeout time.Duration
	started time.Time

	mu     sync.Mutex
	probes map[string]Probe
}

// NewChecker creates a Checker reporting under the given service name.
func NewChecker(service string) *Checker {
	return &Checker{
		service: service,
		timeout: 5 * time.Second,
		started: time.Now(),
		probes:  make(map[string]Probe),
	}
}

// Register adds a named probe.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Run evaluates every probe concurrently and aggregates to the worst
// component status: any down component makes the service down, otherwise any
// degraded component makes it degraded.
func (c *Checker) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	names := make([]string, 0, len(c.probes))
	probes := make([]Probe, 0, len(c.probes))
	for name, probe := range c.probes {
		names = append(names, name)
		probes = append(probes, probe)
	}
	c.mu.Unlock()

	results := make([]ComponentHealth, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i := range probes {
		g.Go(func() error {
			start := time.Now()
			err := probes[i](gctx)
			results[i] = classify(err, time.Since(start))
			return nil
		})
	}
	g.Wait()

	report := Report{
		Service:    c.service,
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(results)),
		CheckedAt:  time.Now().UTC(),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		switch results[i].Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func classify(err error, latency time.Duration) ComponentHealth {
	health := ComponentHealth{
		Status:  StatusUp,
		Latency: latency.Round(time.Millisecond).String(),
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrDegraded):
		health.Status = StatusDegraded
		health.Error = err.Error()
	default:
		health.Status = StatusDown
		health.Error = err.Error()
	}
	return health
}

// LiveHandler answers liveness probes: the process is serving requests.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"service": c.service,
			"status":  "alive",
			"uptime":  time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes with the full component report. A
// degraded service stays ready; only a down component returns 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
