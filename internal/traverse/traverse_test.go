package traverse

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/store"
	apperr "github.com/fundergrid/research-service/pkg/errors"
)

func newTestTraverser(t *testing.T, records []record.Record, strict bool) *Traverser {
	t.Helper()
	s, err := store.New(records, store.Options{})
	if err != nil {
		t.Fatalf("building store: %v", err)
	}
	return New(s, strict, nil)
}

func drain(t *testing.T, seq *Sequence) []Packet {
	t.Helper()
	var packets []Packet
	for {
		p, ok := seq.Next()
		if !ok {
			return packets
		}
		packets = append(packets, p)
	}
}

func numberedRecords(n int) []record.Record {
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

func TestTraverseWithoutQueryWalksStoreOrder(t *testing.T) {
	tr := newTestTraverser(t, numberedRecords(4), true)
	seq, err := tr.Traverse(nil)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	packets := drain(t, seq)
	if len(packets) != 4 {
		t.Fatalf("got %d packets, want 4", len(packets))
	}
	for i, p := range packets {
		if want := fmt.Sprintf("rec-%d", i); p.Record.ID != want {
			t.Errorf("packet %d = %q, want %q", i, p.Record.ID, want)
		}
	}
}

func TestTraverseQueryStrictFilter(t *testing.T) {
	tr := newTestTraverser(t, numberedRecords(8), true)
	query := "Record 5"
	seq, err := tr.Traverse(&query)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	packets := drain(t, seq)
	if len(packets) != 1 || packets[0].Record.ID != "rec-5" {
		t.Errorf("got %+v, want just rec-5", packets)
	}
}

func TestTraverseStrictFilterFallsBack(t *testing.T) {
	// Both tokens match some record, but the full phrase matches none, so
	// the strict filter yields nothing and falls back to the token hits.
	records := []record.Record{
		{ID: "a", Title: "alpha"},
		{ID: "b", Title: "beta"},
	}
	tr := newTestTraverser(t, records, true)
	query := "alpha beta"
	seq, err := tr.Traverse(&query)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	packets := drain(t, seq)
	if len(packets) != 2 {
		t.Errorf("got %d packets, want fallback to both token hits", len(packets))
	}
}

func TestTraverseStrictFilterDisabled(t *testing.T) {
	tr := newTestTraverser(t, numberedRecords(8), false)
	query := "Record 5"
	seq, err := tr.Traverse(&query)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	// Without the strict filter, every record matching any token survives;
	// "record" matches all of them.
	packets := drain(t, seq)
	if len(packets) != 8 {
		t.Errorf("got %d packets, want all 8 token matches", len(packets))
	}
}

func TestTraverseRejectsMalformedQuery(t *testing.T) {
	tr := newTestTraverser(t, numberedRecords(2), true)
	blank := "   "
	if _, err := tr.Traverse(&blank); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank query error = %v, want ErrValidation", err)
	}
}

func TestTraverseRebuildsFreshSequences(t *testing.T) {
	tr := newTestTraverser(t, numberedRecords(3), true)

	first, err := tr.Traverse(nil)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	drain(t, first)
	if first.Remaining() != 0 {
		t.Errorf("spent sequence Remaining() = %d, want 0", first.Remaining())
	}

	second, err := tr.Traverse(nil)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if second.Remaining() != 3 {
		t.Errorf("fresh sequence Remaining() = %d, want 3", second.Remaining())
	}
}

func TestPacketQuality(t *testing.T) {
	tr := newTestTraverser(t, []record.Record{
		{ID: "full", Title: "t", Text: "x", Metadata: map[string]string{"k": "v"}},
		{ID: "bare"},
	}, true)
	seq, err := tr.Traverse(nil)
	if err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	packets := drain(t, seq)
	if packets[0].Quality != 1 {
		t.Errorf("full record quality = %v, want 1", packets[0].Quality)
	}
	if packets[1].Quality != 0 {
		t.Errorf("bare record quality = %v, want 0", packets[1].Quality)
	}
}
