// Package traverse breaks the (optionally query-filtered) record collection
// into a lazy, finite sequence of evaluation packets. Each Traverse call
// rebuilds the sequence from current store state; the yield order is
// deterministic and independent of any concurrent consumption downstream.
package traverse

import (
	"log/slog"
	"strings"

	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/store"
)

// Packet is the unit of work for one evaluation step: a borrowed record plus
// its precomputed quality score in [0,1].
type Packet struct {
	Record  record.Record
	Quality float64
}

// Traverser builds packet sequences over a store.
type Traverser struct {
	store *store.Store

	// strictFilter additionally requires the whole sanitized query (not just
	// one token) to appear in a record's summary, falling back to the plain
	// search results when that filter leaves nothing. This mirrors the
	// funder variant's behavior and is configurable because the over-filter
	// guard is of debatable intent.
	strictFilter bool
	logger       *slog.Logger
}

// New creates a Traverser. strictFilter toggles the whole-query containment
// filter applied on top of search results.
func New(s *store.Store, strictFilter bool, logger *slog.Logger) *Traverser {
	if logger == nil {
		logger = slog.Default().With("component", "traversal")
	}
	return &Traverser{
		store:        s,
		strictFilter: strictFilter,
		logger:       logger,
	}
}

// Traverse returns the packet sequence for the optional query. A nil query
// walks every record in store order. Query validation failures surface here,
// before any packet exists.
func (t *Traverser) Traverse(query *string) (*Sequence, error) {
	if query == nil {
		return newSequence(t.store.Records()), nil
	}

	sanitized, err := t.store.Validator().SanitizeQuery(*query)
	if err != nil {
		return nil, err
	}
	candidates, err := t.store.Search(sanitized, nil)
	if err != nil {
		return nil, err
	}

	records := candidates
	if t.strictFilter {
		needle := strings.ToLower(sanitized)
		var filtered []record.Record
		for _, rec := range candidates {
			if strings.Contains(rec.Summary(), needle) {
				filtered = append(filtered, rec)
			}
		}
		if len(filtered) > 0 {
			records = filtered
		}
	}
	t.logger.Debug("traversal prepared",
		"query", sanitized,
		"candidates", len(candidates),
		"selected", len(records),
	)
	return newSequence(records), nil
}

// Sequence is a pull iterator over packets. It is finite, not safe for
// concurrent use, and spent once exhausted; call Traverse again for a fresh
// one.
type Sequence struct {
	records []record.Record
	pos     int
}

func newSequence(records []record.Record) *Sequence {
	return &Sequence{records: records}
}

// Next yields the next packet in traversal order. The quality score is
// computed lazily, as the packet is drawn.
func (s *Sequence) Next() (Packet, bool) {
	if s.pos >= len(s.records) {
		return Packet{}, false
	}
	rec := s.records[s.pos]
	s.pos++
	return Packet{
		Record:  rec,
		Quality: rec.QualityScore(),
	}, true
}

// Remaining reports how many packets are still to be drawn.
func (s *Sequence) Remaining() int {
	return len(s.records) - s.pos
}
