package eval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/store"
	"github.com/fundergrid/research-service/internal/traverse"
	apperr "github.com/fundergrid/research-service/pkg/errors"
)

func newTestTraverser(t *testing.T, records []record.Record) *traverse.Traverser {
	t.Helper()
	s, err := store.New(records, store.Options{})
	if err != nil {
		t.Fatalf("building store: %v", err)
	}
	return traverse.New(s, true, nil)
}

func ownerRecords(n int) []record.Record {
	records := make([]record.Record, n)
	for i := range records {
		records[i] = record.Record{
			ID:       fmt.Sprintf("rec-%d", i),
			Title:    fmt.Sprintf("Record %d", i),
			Metadata: map[string]string{"owner": fmt.Sprintf("owner-%d", i)},
		}
	}
	return records
}

// trackingProcessor counts in-flight packet tasks and injects delays to
// scramble completion order.
type trackingProcessor struct {
	active      atomic.Int64
	maxObserved atomic.Int64
	delay       func(seq int) time.Duration
	calls       atomic.Int64
}

func (p *trackingProcessor) Process(ctx context.Context, packet traverse.Packet) (traverse.Packet, error) {
	current := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.maxObserved.Load()
		if current <= peak || p.maxObserved.CompareAndSwap(peak, current) {
			break
		}
	}
	call := int(p.calls.Add(1)) - 1
	if p.delay != nil {
		time.Sleep(p.delay(call))
	}
	return packet, nil
}

func TestRunFiltersRecordsByQuery(t *testing.T) {
	records := []record.Record{
		{ID: "alpha-1", Title: "Alpha", Metadata: map[string]string{"owner": "alice"}},
		{ID: "beta-2", Title: "Beta", Metadata: map[string]string{"owner": "bob"}},
	}
	coord, err := NewCoordinator(newTestTraverser(t, records), map[string]any{"owner": "unknown"}, 2)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	query := "Alpha"
	vars, err := coord.Run(context.Background(), &query)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if vars["owner"] != "alice" {
		t.Errorf("owner = %v, want alice", vars["owner"])
	}
}

func TestRunThrottlesConcurrency(t *testing.T) {
	processor := &trackingProcessor{
		delay: func(int) time.Duration { return 10 * time.Millisecond },
	}
	coord, err := NewCoordinator(
		newTestTraverser(t, ownerRecords(10)),
		map[string]any{"owner": nil},
		3,
		WithProcessor(processor),
	)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	vars, err := coord.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if vars["owner"] != "owner-0" {
		t.Errorf("owner = %v, want first-writer owner-0", vars["owner"])
	}
	if got := processor.maxObserved.Load(); got > 3 {
		t.Errorf("observed %d in-flight tasks, bound is 3", got)
	}
}

func TestRunResultIndependentOfCompletionOrder(t *testing.T) {
	records := ownerRecords(12)
	funderVars := map[string]any{"owner": nil, "missing": "fallback"}

	baseline, err := NewCoordinator(newTestTraverser(t, records), funderVars, 4)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	want, err := baseline.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("baseline Run: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		delays := make([]time.Duration, len(records))
		for i := range delays {
			delays[i] = time.Duration(rng.Intn(15)) * time.Millisecond
		}
		coord, err := NewCoordinator(
			newTestTraverser(t, records),
			funderVars,
			4,
			WithProcessor(&trackingProcessor{
				delay: func(seq int) time.Duration { return delays[seq%len(delays)] },
			}),
		)
		if err != nil {
			t.Fatalf("NewCoordinator: %v", err)
		}
		got, err := coord.Run(context.Background(), nil)
		if err != nil {
			t.Fatalf("trial %d Run: %v", trial, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("trial %d: got %v, want %v", trial, got, want)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	coord, err := NewCoordinator(newTestTraverser(t, ownerRecords(5)), map[string]any{"owner": nil}, 2)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	first, err := coord.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := coord.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ: %v vs %v", first, second)
	}
}

func TestRunAppliesFallbacks(t *testing.T) {
	records := []record.Record{
		{ID: "a", Metadata: map[string]string{"owner": "alice"}},
	}
	funderVars := map[string]any{
		"owner":   "unknown",
		"program": "general",
		"lead":    nil,
	}
	coord, err := NewCoordinator(newTestTraverser(t, records), funderVars, 2)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	vars, err := coord.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if vars["owner"] != "alice" {
		t.Errorf("owner = %v, want record value alice", vars["owner"])
	}
	if vars["program"] != "general" {
		t.Errorf("program = %v, want fallback general", vars["program"])
	}
	if got, ok := vars["lead"]; !ok || got != nil {
		t.Errorf("lead = %v (present=%v), want explicit nil entry", got, ok)
	}
}

func TestRunRejectsMalformedQueryBeforeDispatch(t *testing.T) {
	processor := &trackingProcessor{}
	coord, err := NewCoordinator(
		newTestTraverser(t, ownerRecords(3)),
		map[string]any{"owner": nil},
		2,
		WithProcessor(processor),
	)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	blank := "   "
	if _, err := coord.Run(context.Background(), &blank); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank query error = %v, want ErrValidation", err)
	}
	if processor.calls.Load() != 0 {
		t.Errorf("%d packets dispatched for a rejected query, want 0", processor.calls.Load())
	}
}

type failingProcessor struct {
	failAt int
	calls  atomic.Int64
}

func (p *failingProcessor) Process(ctx context.Context, packet traverse.Packet) (traverse.Packet, error) {
	if int(p.calls.Add(1))-1 == p.failAt {
		return packet, errors.New("enrichment backend unavailable")
	}
	return packet, nil
}

func TestRunPropagatesFirstTaskFailure(t *testing.T) {
	coord, err := NewCoordinator(
		newTestTraverser(t, ownerRecords(6)),
		map[string]any{"owner": nil},
		2,
		WithProcessor(&failingProcessor{failAt: 2}),
	)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	vars, err := coord.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected task failure to propagate")
	}
	if vars != nil {
		t.Errorf("failed run returned partial result %v, want nil", vars)
	}
}

func TestNewCoordinatorRejectsInvalidBound(t *testing.T) {
	for _, bound := range []int{0, -1} {
		_, err := NewCoordinator(newTestTraverser(t, nil), map[string]any{}, bound)
		if !errors.Is(err, apperr.ErrConfiguration) {
			t.Errorf("bound %d error = %v, want ErrConfiguration", bound, err)
		}
	}
}
