// Package apperr defines the error taxonomy shared by the catalog, ticket and
// session layers. Every error that crosses the HTTP boundary is reduced to one
// Kind so clients can tell failures apart without parsing messages.
package apperr

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is the machine-readable class of a failure.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindDataIntegrity     Kind = "data_integrity"
	KindConflict          Kind = "conflict"
	KindTimeout           Kind = "timeout"
	KindUnexpected        Kind = "unexpected"
)

// Sentinel errors, one per Kind. Typed errors below match them through Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrConflict          = errors.New("conflict")
	ErrTimeout           = errors.New("timeout")
)

// NotFoundError reports a missing entity ("ticket", "product", ...).
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError reports that a product cannot cover the requested
// quantity.
type InsufficientStockError struct {
	ProductCode string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available, %d requested",
		e.ProductCode, e.Available, e.Requested)
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Invalid wraps a validation failure so it classifies as KindInvalidInput.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// Invalidf builds a KindInvalidInput error from a format string.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// KindOf classifies err. Context deadlines count as timeouts; anything not
// explicitly classified is KindUnexpected.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrDataIntegrity):
		return KindDataIntegrity
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnexpected
	}
}
