// Package record defines the research record type and the sources the store
// can be loaded from at startup. Records are immutable after load: every
// source returns a fresh slice that the store owns for the process lifetime.
package record

import (
	"sort"
	"strings"
)

// Record is a single research record. Callers receive records by reference
// from the store and must not mutate them.
type Record struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Text     string            `json:"text,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Summary returns the lower-cased concatenation of title, text, and metadata
// values, the haystack both the simple search method and the traversal
// query filter match against.
func (r Record) Summary() string {
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, 2+len(keys))
	parts = append(parts, r.Title, r.Text)
	for _, k := range keys {
		parts = append(parts, r.Metadata[k])
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// QualityScore is a static placeholder heuristic in [0,1]: the fraction of
// the title/text/metadata fields that are populated. It is not a ranking
// guarantee.
func (r Record) QualityScore() float64 {
	populated := 0
	if r.Title != "" {
		populated++
	}
	if r.Text != "" {
		populated++
	}
	if len(r.Metadata) > 0 {
		populated++
	}
	return float64(populated) / 3
}
