// Package fault defines the domain error taxonomy shared by the contract
// lifecycle and renewal packages. Every error surfaced to callers is one of
// three kinds: Validation (caller-fixable input or precondition violation),
// NotFound (unknown id within the tenant), or Conflict (a concurrent writer
// won; re-fetch and retry).
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
)

// Error is a classified domain error.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// Validation returns a caller-fixable input or precondition error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// NotFound returns an unknown-id error. The detail must not reveal whether
// the id exists in another tenant.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Conflict returns a concurrency error (version mismatch or unique
// constraint violation surfaced from the store).
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to the error, keeping its kind.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Detail: e.Detail, cause: cause}
}

// IsValidation reports whether err is a Validation fault.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsNotFound reports whether err is a NotFound fault.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsConflict reports whether err is a Conflict fault.
func IsConflict(err error) bool { return isKind(err, KindConflict) }

func isKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
