package search

import (
	"testing"

	"github.com/fundergrid/research-service/internal/record"
)

func testRecords() []record.Record {
	return []record.Record{
		{ID: "r1", Title: "Alpha grant", Text: "funding for rockets"},
		{ID: "r2", Title: "Beta grant", Text: "funding for submarines"},
		{ID: "r3", Title: "Gamma", Metadata: map[string]string{"owner": "alice"}},
	}
}

func ids(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestSimpleMatchesAnyToken(t *testing.T) {
	hits := Simple{}.Search(testRecords(), "submarines alpha")
	got := ids(hits)
	if len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Errorf("got %v, want [r1 r2]", got)
	}
}

func TestSimpleMatchesMetadataValues(t *testing.T) {
	hits := Simple{}.Search(testRecords(), "alice")
	got := ids(hits)
	if len(got) != 1 || got[0] != "r3" {
		t.Errorf("got %v, want [r3]", got)
	}
}

func TestSimplePreservesStoreOrder(t *testing.T) {
	hits := Simple{}.Search(testRecords(), "grant funding gamma")
	got := ids(hits)
	if len(got) != 3 || got[0] != "r1" || got[1] != "r2" || got[2] != "r3" {
		t.Errorf("got %v, want store order [r1 r2 r3]", got)
	}
}

func TestSimpleNoMatches(t *testing.T) {
	if hits := (Simple{}).Search(testRecords(), "zeppelin"); len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestRegistryResolvesBuiltin(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Resolve("simple"); !ok {
		t.Fatal(`built-in "simple" method missing from fresh registry`)
	}
	if _, ok := r.Resolve("fancy"); ok {
		t.Error("unregistered method resolved")
	}
}

func TestRegistryOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("simple", Func(func(records []record.Record, query string) []record.Record {
		return nil
	}))
	m, ok := r.Resolve("simple")
	if !ok {
		t.Fatal("overwritten method missing")
	}
	if hits := m.Search(testRecords(), "grant"); hits != nil {
		t.Errorf("expected replacement method, got %d hits", len(hits))
	}
}
