// Package apperr defines the error-kind taxonomy shared by the tape
// scheduler, client pool, and write queue so callers can branch on what
// went wrong without string-matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP status mapping and retry policy.
type Kind int

const (
	// KindUnexpected is the zero value: an error with no specific kind.
	KindUnexpected Kind = iota
	// KindValidation marks bad client input. Maps to HTTP 400/422.
	KindValidation
	// KindNotFound marks a missing room, agent, or message. Maps to HTTP 404.
	KindNotFound
	// KindPermissionDenied marks an authorization failure. Maps to HTTP 403.
	KindPermissionDenied
	// KindConflict marks a uniqueness violation. Maps to HTTP 409.
	KindConflict
	// KindTransientTransport marks a retryable LLM-runtime connect failure.
	KindTransientTransport
	// KindCancellation marks cooperative cancellation; never surfaced as an HTTP error.
	KindCancellation
	// KindStorageBusy marks a retryable "database is locked" condition.
	KindStorageBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindConflict:
		return "conflict"
	case KindTransientTransport:
		return "transient_transport"
	case KindCancellation:
		return "cancellation"
	case KindStorageBusy:
		return "storage_busy"
	default:
		return "unexpected"
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or KindUnexpected if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

var (
	// ErrNotFound is a sentinel usable with errors.Is for store lookups.
	ErrNotFound = errors.New("not found")
	// ErrConflict is a sentinel for uniqueness violations.
	ErrConflict = errors.New("conflict")
)
