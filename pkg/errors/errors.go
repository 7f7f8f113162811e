// Package errors defines the sentinel error kinds raised by the research
// core (validator, record store, coordinator) and maps them to HTTP status
// codes for the tool surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidType   = errors.New("invalid input type")
	ErrValidation    = errors.New("validation failed")
	ErrUnknownMethod = errors.New("unknown search method")
	ErrNotFound      = errors.New("record not found")
	ErrParse         = errors.New("record source parse error")
	ErrConfiguration = errors.New("invalid configuration")
	ErrInternal      = errors.New("internal error")
)

// AppError wraps a sentinel with a caller-facing message. The sentinel is
// never hidden: Unwrap keeps errors.Is checks working across layers.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Kind returns a short machine-readable name for the sentinel behind err,
// used by the tool surface so callers can distinguish failure kinds.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

// HTTPStatusCode maps an error kind to the status the tool surface returns.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidType),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnknownMethod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
