// Package search defines the pluggable search-method capability and the
// registry mapping normalized method names to implementations. The built-in
// "simple" method is just the default entry, not privileged in any way.
package search

import (
	"log/slog"
	"strings"

	"github.com/fundergrid/research-service/internal/record"
)

// Method searches an ordered record collection and returns matches in an
// order of its own choosing. Implementations must be safe for concurrent use
// once registered: the registry is read-only after startup.
type Method interface {
	Search(records []record.Record, query string) []record.Record
}

// Func adapts a plain function to the Method interface.
type Func func(records []record.Record, query string) []record.Record

func (f Func) Search(records []record.Record, query string) []record.Record {
	return f(records, query)
}

// Registry maps normalized method names to Methods. It is single-writer:
// all Register calls happen before the first Resolve, so lookups need no
// locking.
type Registry struct {
	methods map[string]Method
	logger  *slog.Logger
}

// NewRegistry creates a registry with the built-in "simple" method present.
func NewRegistry() *Registry {
	r := &Registry{
		methods: make(map[string]Method),
		logger:  slog.Default().With("component", "search-registry"),
	}
	r.methods["simple"] = Simple{}
	return r
}

// Register inserts or overwrites the entry for name. The caller passes a
// pre-normalized name; an empty name is the caller's validation failure.
func (r *Registry) Register(name string, m Method) {
	r.methods[name] = m
	r.logger.Debug("search method registered", "method", name)
}

// Resolve returns the Method registered under name.
func (r *Registry) Resolve(name string) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Simple is the built-in keyword method: a record matches when its summary
// contains at least one whitespace-delimited token of the lower-cased query
// (OR semantics, substring match per token). Store order is preserved and
// no ranking is applied. Intentionally naive.
type Simple struct{}

func (Simple) Search(records []record.Record, query string) []record.Record {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}
	var hits []record.Record
	for _, rec := range records {
		hay := rec.Summary()
		for _, token := range tokens {
			if strings.Contains(hay, token) {
				hits = append(hits, rec)
				break
			}
		}
	}
	return hits
}
