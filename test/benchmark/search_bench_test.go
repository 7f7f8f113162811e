package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/fundergrid/research-service/internal/eval"
	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/search"
	"github.com/fundergrid/research-service/internal/store"
	"github.com/fundergrid/research-service/internal/traverse"
)

func syntheticRecords(n int) []record.Record {
	topics := []string{"marine biology", "soil chemistry", "air quality", "glacier melt", "urban heat"}
	records := make([]record.Record, n)
	for i := 0; i < n; i++ {
		topic := topics[i%len(topics)]
		records[i] = record.Record{
			ID:    fmt.Sprintf("rec-%d", i),
			Title: fmt.Sprintf("Study %d on %s", i, topic),
			Text:  fmt.Sprintf("Longitudinal research program covering %s across region %d.", topic, i%7),
			Metadata: map[string]string{
				"owner":  fmt.Sprintf("group-%d", i%11),
				"region": fmt.Sprintf("region-%d", i%7),
			},
		}
	}
	return records
}

// BenchmarkSimpleSearch measures token-match search latency across store
// sizes and query shapes.
func BenchmarkSimpleSearch(b *testing.B) {
	sizes := []int{100, 1000, 10000}
	queries := []struct {
		name  string
		query string
	}{
		{"single_token", "marine"},
		{"multi_token", "soil chemistry region"},
		{"no_match", "superconductors"},
	}

	for _, size := range sizes {
		records := syntheticRecords(size)
		method := search.Simple{}
		for _, q := range queries {
			b.Run(fmt.Sprintf("records_%d/%s", size, q.name), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					_ = method.Search(records, q.query)
				}
			})
		}
	}
}

// BenchmarkStoreSearch measures the full search path including validation
// and method resolution.
func BenchmarkStoreSearch(b *testing.B) {
	s, err := store.New(syntheticRecords(1000), store.Options{})
	if err != nil {
		b.Fatalf("building store: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search("glacier melt", nil); err != nil {
			b.Fatalf("Search: %v", err)
		}
	}
}

// BenchmarkStoreFetch measures id validation plus index lookup.
func BenchmarkStoreFetch(b *testing.B) {
	s, err := store.New(syntheticRecords(10000), store.Options{})
	if err != nil {
		b.Fatalf("building store: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Fetch("rec-5000"); err != nil {
			b.Fatalf("Fetch: %v", err)
		}
	}
}

// BenchmarkEvaluationRun measures a full coordinator run at different
// concurrency bounds with the pass-through processor.
func BenchmarkEvaluationRun(b *testing.B) {
	s, err := store.New(syntheticRecords(1000), store.Options{})
	if err != nil {
		b.Fatalf("building store: %v", err)
	}
	funderVars := map[string]any{"owner": nil, "region": nil, "lead": "unassigned"}

	for _, bound := range []int{1, 4, 16} {
		coord, err := eval.NewCoordinator(traverse.New(s, true, nil), funderVars, bound)
		if err != nil {
			b.Fatalf("NewCoordinator: %v", err)
		}
		b.Run(fmt.Sprintf("concurrency_%d", bound), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := coord.Run(context.Background(), nil); err != nil {
					b.Fatalf("Run: %v", err)
				}
			}
		})
	}
}
