// Package store holds the in-memory record collection and its identifier
// index, and exposes the search/fetch operations the tool surface delegates
// to. The store is built once at startup and is read-only afterward, so it
// is shared across concurrent evaluation tasks without locking.
package store

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fundergrid/research-service/internal/record"
	"github.com/fundergrid/research-service/internal/search"
	"github.com/fundergrid/research-service/internal/validator"
	apperr "github.com/fundergrid/research-service/pkg/errors"
)

// Store owns the ordered record sequence and the derived id index.
type Store struct {
	records       []record.Record
	index         map[string]record.Record
	registry      *search.Registry
	validate      *validator.Validator
	defaultMethod string
	logger        *slog.Logger
}

// Options configures a Store.
type Options struct {
	// DefaultMethod is used when a search call names no method. Defaults to
	// "simple".
	DefaultMethod string
	Validator     *validator.Validator
	Registry      *search.Registry
	Logger        *slog.Logger
}

// Load draws the record snapshot from source and builds the store.
func Load(ctx context.Context, source record.Source, opts Options) (*Store, error) {
	records, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(records, opts)
}

// New builds a store over the given records. Records lacking a non-blank id
// are dropped; surrounding whitespace on ids is trimmed before indexing.
// Duplicate ids resolve last-wins: the latest record in load order shadows
// earlier ones in the index, which keeps lookups deterministic.
func New(records []record.Record, opts Options) (*Store, error) {
	v := opts.Validator
	if v == nil {
		v = validator.New()
	}
	registry := opts.Registry
	if registry == nil {
		registry = search.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "record-store")
	}
	defaultMethod := strings.ToLower(strings.TrimSpace(opts.DefaultMethod))
	if defaultMethod == "" {
		defaultMethod = "simple"
	}

	index := make(map[string]record.Record, len(records))
	dropped := 0
	for i := range records {
		id := strings.TrimSpace(records[i].ID)
		if id == "" {
			dropped++
			continue
		}
		index[id] = records[i]
	}
	if dropped > 0 {
		logger.Warn("records without usable ids skipped", "count", dropped)
	}
	logger.Info("record store built", "records", len(records), "indexed", len(index))

	return &Store{
		records:       records,
		index:         index,
		registry:      registry,
		validate:      v,
		defaultMethod: defaultMethod,
		logger:        logger,
	}, nil
}

// Len returns the number of records in store order.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns the ordered record sequence. Callers must treat the slice
// and its records as read-only.
func (s *Store) Records() []record.Record {
	return s.records
}

// Validator exposes the store's validator for collaborators that must apply
// identical query normalisation.
func (s *Store) Validator() *validator.Validator {
	return s.validate
}

// RegisterSearch adds a search method under the normalized form of name.
func (s *Store) RegisterSearch(name string, m search.Method) error {
	normalized, err := s.validate.NormalizeMethodName(&name)
	if err != nil {
		return err
	}
	if normalized == nil {
		return apperr.New(apperr.ErrValidation, "search method name cannot be empty")
	}
	s.registry.Register(*normalized, m)
	return nil
}

// Search sanitizes the query, resolves the method name (explicit, else the
// configured default), and delegates to the registered method, preserving
// that method's result order.
func (s *Store) Search(query string, method *string) ([]record.Record, error) {
	sanitized, err := s.validate.SanitizeQuery(query)
	if err != nil {
		return nil, err
	}
	normalized, err := s.validate.NormalizeMethodName(method)
	if err != nil {
		return nil, err
	}
	name := s.defaultMethod
	if normalized != nil {
		name = *normalized
	}
	if name == "" {
		return nil, apperr.New(apperr.ErrValidation, "search method cannot be blank")
	}
	m, ok := s.registry.Resolve(name)
	if !ok {
		s.logger.Warn("unknown search method", "method", name)
		return nil, apperr.Newf(apperr.ErrUnknownMethod, "unknown search method: %s", name)
	}
	results := m.Search(s.records, sanitized)
	s.logger.Info("search completed",
		"method", name,
		"query", sanitized,
		"hits", len(results),
	)
	return results, nil
}

// Fetch validates the identifier and returns the indexed record.
func (s *Store) Fetch(id string) (record.Record, error) {
	identifier, err := s.validate.ValidateIdentifier(id, "id")
	if err != nil {
		return record.Record{}, err
	}
	rec, ok := s.index[identifier]
	if !ok {
		s.logger.Warn("record not found", "id", identifier)
		return record.Record{}, apperr.Newf(apperr.ErrNotFound, "unknown id: %s", identifier)
	}
	s.logger.Info("record fetched", "id", identifier)
	return rec, nil
}
