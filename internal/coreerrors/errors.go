// Package coreerrors gives the escrow engine's error taxonomy concrete Go
// types. Every fallible operation in internal/ classifies its failure into
// one of these kinds so the outermost boundary (an HTTP handler, a
// background task) can decide whether to retry, surface, or escalate.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure not by Go type but by how the caller should
// react to it.
type Kind int

const (
	// KindValidation marks malformed input. Never retried.
	KindValidation Kind = iota
	// KindAuthorization marks a principal lacking permission for an action.
	KindAuthorization
	// KindInvalidState marks a request that is well-formed but illegal from
	// the entity's current state.
	KindInvalidState
	// KindTransient marks a network/DB failure eligible for backoff retry.
	KindTransient
	// KindProtocol marks a cryptographic or cross-party protocol violation
	// (address mismatch, signature failure, chain tamper).
	KindProtocol
	// KindSecurity marks a startup/config safety violation.
	KindSecurity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindInvalidState:
		return "invalid_state"
	case KindTransient:
		return "transient"
	case KindProtocol:
		return "protocol"
	case KindSecurity:
		return "security"
	default:
		return "unknown"
	}
}

// Error is the structured failure value components return. Component code
// never converts this to an HTTP status or exits the process; that is the
// boundary's job (see §7 "Propagation policy").
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, coreerrors.KindInvalidState-shaped sentinel) work
// by comparing Kind, not identity, so wrapped errors still classify.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, nil, format, args...)
}

// Authorization builds a KindAuthorization error.
func Authorization(format string, args ...interface{}) *Error {
	return newf(KindAuthorization, nil, format, args...)
}

// InvalidState builds a KindInvalidState error.
func InvalidState(format string, args ...interface{}) *Error {
	return newf(KindInvalidState, nil, format, args...)
}

// Transient builds a KindTransient error wrapping cause.
func Transient(cause error, format string, args ...interface{}) *Error {
	return newf(KindTransient, cause, format, args...)
}

// Protocol builds a KindProtocol error.
func Protocol(format string, args ...interface{}) *Error {
	return newf(KindProtocol, nil, format, args...)
}

// Security builds a KindSecurity error.
func Security(format string, args ...interface{}) *Error {
	return newf(KindSecurity, nil, format, args...)
}

// Wrap attaches cause to an existing kind, formatting message the same
// way as Validation/Authorization/etc, for call sites passing a
// lower-level error up with its kind preserved.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return newf(kind, cause, format, args...)
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
