package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure for the boundary layer.
type Kind string

const (
	// KindValidation marks malformed input rejected before any transaction.
	KindValidation Kind = "VALIDATION"
	// KindAuthorization marks a role or location scope mismatch.
	KindAuthorization Kind = "AUTHORIZATION"
	// KindNotFound marks a missing or invisible entity.
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidState marks a transition that does not apply to the current status.
	KindInvalidState Kind = "INVALID_STATE"
	// KindInsufficientStock marks a decrement larger than the ledger quantity.
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	// KindConstraint marks a referential integrity failure surfaced by the store.
	KindConstraint Kind = "CONSTRAINT"
	// KindSystem marks an unexpected failure; always logged, never swallowed.
	KindSystem Kind = "SYSTEM"
)

// Error carries a kind plus a user-safe message across the service boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a typed error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapE attaches a kind and message to an underlying error.
func WrapE(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, defaulting to KindSystem.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindSystem
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserSafeMessage returns a message suitable for end users. System errors are
// reduced to a generic sentence so internals never leak to the boundary.
func UserSafeMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindSystem {
		return de.Message
	}
	return "Terjadi kesalahan internal, silakan coba lagi"
}
