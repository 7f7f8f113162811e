// Package eval implements the evaluation coordinator: it fans the packet
// traversal out under a bounded-concurrency schedule and merges the results
// into a deterministic funder-variable assignment.
package eval

import (
	"context"
	"log/slog"
	"sort"

	"github.com/fundergrid/research-service/internal/traverse"
	apperr "github.com/fundergrid/research-service/pkg/errors"
	"github.com/fundergrid/research-service/pkg/metrics"
	"github.com/fundergrid/research-service/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// Variables is the evaluation output: one entry per configured funder
// variable, nil meaning unresolved. A fresh mapping is created per run and
// handed to the caller as a snapshot; no identity persists across runs.
type Variables map[string]any

// Processor handles a single dispatched packet. Today the only production
// implementation is a pass-through; the interface is the substitution point
// for future I/O-bound enrichment, so admission and merge logic never needs
// to change.
type Processor interface {
	Process(ctx context.Context, p traverse.Packet) (traverse.Packet, error)
}

// PassThrough returns packets unchanged.
type PassThrough struct{}

func (PassThrough) Process(ctx context.Context, p traverse.Packet) (traverse.Packet, error) {
	return p, nil
}

// Coordinator runs bounded-concurrency packet evaluation over a traverser.
type Coordinator struct {
	traverser      *traverse.Traverser
	funderVars     map[string]any
	maxConcurrency int
	processor      Processor
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProcessor substitutes the per-packet processing unit.
func WithProcessor(p Processor) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.processor = p
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger injects the coordinator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator validates the concurrency bound up front: a bound below 1
// is a configuration error surfaced before any run starts. funderVars maps
// each output variable to its fallback value (which may be nil).
func NewCoordinator(t *traverse.Traverser, funderVars map[string]any, maxConcurrency int, opts ...Option) (*Coordinator, error) {
	if maxConcurrency < 1 {
		return nil, apperr.Newf(apperr.ErrConfiguration, "max concurrency must be at least 1, got %d", maxConcurrency)
	}
	c := &Coordinator{
		traverser:      t,
		funderVars:     funderVars,
		maxConcurrency: maxConcurrency,
		processor:      PassThrough{},
		logger:         slog.Default().With("component", "eval-coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// completion pairs a processed packet with the sequence index it was drawn
// under. The index restores traversal order after unordered completion.
type completion struct {
	seq    int
	packet traverse.Packet
}

// Run executes one evaluation: traverse, dispatch with at most
// maxConcurrency packets in flight, collect, merge in traversal order, and
// apply fallbacks. The final assignment depends only on traversal order,
// never on completion order. The first task failure aborts the run; a merge
// is never partially applied.
func (c *Coordinator) Run(ctx context.Context, query *string) (Variables, error) {
	vars := make(Variables, len(c.funderVars))
	for k := range c.funderVars {
		vars[k] = nil
	}

	// Malformed queries surface here, before any packet is dispatched.
	seq, err := c.traverser.Traverse(query)
	if err != nil {
		c.observeRun("rejected")
		return nil, err
	}

	c.logger.Info("evaluation started",
		"query_preview", preview(query),
		"max_concurrency", c.maxConcurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)

	var (
		completions []completion
		collect     = make(chan completion)
		collected   = make(chan struct{})
	)
	go func() {
		for done := range collect {
			completions = append(completions, done)
		}
		close(collected)
	}()

	// g.Go blocks once maxConcurrency tasks are in flight, so this drawing
	// loop doubles as the admission gate.
	index := 0
	for {
		packet, ok := seq.Next()
		if !ok {
			break
		}
		i := index
		index++
		p := packet
		g.Go(func() error {
			if c.metrics != nil {
				c.metrics.PacketsInFlight.Inc()
				defer c.metrics.PacketsInFlight.Dec()
			}
			processed, err := c.processor.Process(gctx, p)
			if err != nil {
				return err
			}
			if c.metrics != nil {
				c.metrics.PacketsProcessed.Inc()
				c.metrics.PacketQuality.Observe(processed.Quality)
			}
			select {
			case collect <- completion{seq: i, packet: processed}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	err = g.Wait()
	close(collect)
	<-collected
	if err != nil {
		c.logger.Error("evaluation aborted", "error", err)
		c.observeRun("failed")
		return nil, err
	}

	// Restore traversal order so the merge is independent of completion
	// order, then merge sequentially: first writer per key wins, later
	// packets never overwrite a resolved key.
	sort.Slice(completions, func(a, b int) bool {
		return completions[a].seq < completions[b].seq
	})
	for _, done := range completions {
		c.merge(vars, done.packet)
	}
	c.applyFallbacks(vars)

	if span := tracing.FromContext(ctx); span != nil {
		span.SetAttr("packets_evaluated", len(completions))
	}

	c.logger.Info("evaluation completed",
		"packets", len(completions),
		"assigned_vars", len(vars),
	)
	c.observeRun("ok")
	return vars, nil
}

func (c *Coordinator) merge(vars Variables, packet traverse.Packet) {
	metadata := packet.Record.Metadata
	if len(metadata) == 0 {
		return
	}
	for key, current := range vars {
		if current != nil {
			continue
		}
		if value, ok := metadata[key]; ok {
			vars[key] = value
		}
	}
}

func (c *Coordinator) applyFallbacks(vars Variables) {
	for key, fallback := range c.funderVars {
		if vars[key] == nil {
			vars[key] = fallback
		}
	}
}

func (c *Coordinator) observeRun(outcome string) {
	if c.metrics != nil {
		c.metrics.EvaluationRunsTotal.WithLabelValues(outcome).Inc()
	}
}

func preview(query *string) string {
	if query == nil {
		return ""
	}
	q := *query
	if len(q) > 80 {
		q = q[:80]
	}
	return q
}
