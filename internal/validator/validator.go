// Package validator normalises and rejects malformed queries, identifiers,
// and search method names before they reach the record store. All functions
// are deterministic and perform no I/O beyond diagnostic logging.
package validator

import (
	"log/slog"
	"regexp"
	"strings"

	apperr "github.com/fundergrid/research-service/pkg/errors"
)

const (
	// DefaultMaxQueryLength bounds a sanitized query. The limit is applied
	// after control characters are stripped and whitespace is collapsed.
	DefaultMaxQueryLength = 512

	// DefaultMaxIDLength bounds a trimmed identifier.
	DefaultMaxIDLength = 128
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validator carries an injected logger and configurable length limits.
type Validator struct {
	maxQueryLength int
	maxIDLength    int
	logger         *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxQueryLength overrides the query length limit.
func WithMaxQueryLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxQueryLength = n
		}
	}
}

// WithMaxIDLength overrides the identifier length limit.
func WithMaxIDLength(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxIDLength = n
		}
	}
}

// WithLogger injects the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// New builds a Validator with the default limits.
func New(opts ...Option) *Validator {
	v := &Validator{
		maxQueryLength: DefaultMaxQueryLength,
		maxIDLength:    DefaultMaxIDLength,
		logger:         slog.Default().With("component", "validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SanitizeQuery strips control characters (codepoints below 0x20 plus DEL),
// collapses whitespace runs to single spaces, and trims the edges. The
// result must be non-empty and within the query length limit.
func (v *Validator) SanitizeQuery(raw string) (string, error) {
	cleaned := stripControl(raw)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		v.logger.Warn("empty query rejected")
		return "", apperr.New(apperr.ErrValidation, "query cannot be empty")
	}
	if len(cleaned) > v.maxQueryLength {
		v.logger.Warn("query too long", "length", len(cleaned))
		return "", apperr.Newf(apperr.ErrValidation, "query exceeds %d characters", v.maxQueryLength)
	}
	return cleaned, nil
}

// ValidateIdentifier trims the identifier and checks it is non-empty, within
// the length limit, free of control characters, and matches the
// letters/digits/underscore/dot/dash whitelist. field names the input in
// error messages.
func (v *Validator) ValidateIdentifier(raw string, field string) (string, error) {
	if field == "" {
		field = "id"
	}
	identifier := strings.TrimSpace(raw)
	if identifier == "" {
		v.logger.Warn("empty identifier rejected", "field", field)
		return "", apperr.Newf(apperr.ErrValidation, "%s cannot be empty", field)
	}
	if len(identifier) > v.maxIDLength {
		v.logger.Warn("identifier too long", "field", field, "length", len(identifier))
		return "", apperr.Newf(apperr.ErrValidation, "%s exceeds %d characters", field, v.maxIDLength)
	}
	if containsControl(identifier) {
		v.logger.Warn("identifier contains control characters", "field", field)
		return "", apperr.Newf(apperr.ErrValidation, "%s may not contain control characters", field)
	}
	if !namePattern.MatchString(identifier) {
		v.logger.Warn("identifier pattern mismatch", "field", field)
		return "", apperr.Newf(apperr.ErrValidation, "%s may only contain alphanumerics, '_', '.', or '-'", field)
	}
	return identifier, nil
}

// NormalizeMethodName lower-cases and trims a search method name. A nil
// method passes through; a name that trims to nothing resolves to nil so the
// caller falls back to its configured default.
func (v *Validator) NormalizeMethodName(method *string) (*string, error) {
	if method == nil {
		return nil, nil
	}
	candidate := strings.ToLower(strings.TrimSpace(*method))
	if candidate == "" {
		return nil, nil
	}
	if !namePattern.MatchString(candidate) {
		v.logger.Warn("method pattern mismatch", "method", *method)
		return nil, apperr.New(apperr.ErrValidation, "method names may only contain alphanumerics, '_', '.', or '-'")
	}
	return &candidate, nil
}

// stripControl replaces control characters with spaces so adjacent words do
// not fuse together before whitespace collapsing.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}

func containsControl(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return r < 0x20 || r == 0x7f
	})
}
