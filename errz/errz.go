// Package errz defines the errors reported by the heap, its handles and its
// collector.
//
// Every error is an *Error carrying a Kind. Callers match on kind with the
// standard library:
//
//	if errors.Is(err, errz.ErrOutOfMemory) {
//		// abort the VM or raise a host-level error
//	}
package errz

import (
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrKindOutOfMemory indicates an allocation that did not fit even after
	// a forced collection.
	ErrKindOutOfMemory ErrorKind = iota
	// ErrKindInvalidCapacity indicates a heap configured with no usable space.
	ErrKindInvalidCapacity
	// ErrKindHeapClosed indicates use of a heap after Close.
	ErrKindHeapClosed
	// ErrKindTypeMismatch indicates a runtime tag that differs from the
	// requested type.
	ErrKindTypeMismatch
	// ErrKindScopeClosed indicates a scope asked to mint a handle after its
	// destruction began.
	ErrKindScopeClosed
	// ErrKindStaleHandle indicates a local handle used after its scope closed.
	ErrKindStaleHandle
	// ErrKindInvalidHandle indicates a reference to an allocation that is not
	// live in this heap.
	ErrKindInvalidHandle
	// ErrKindScopeOrder indicates scopes opened out of stack order.
	ErrKindScopeOrder
	// ErrKindCollecting indicates a heap operation attempted mid-collection.
	ErrKindCollecting
	// ErrKindFinalizer indicates a host finalizer returned an error.
	ErrKindFinalizer
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindOutOfMemory:
		return "out of memory"
	case ErrKindInvalidCapacity:
		return "invalid capacity"
	case ErrKindHeapClosed:
		return "heap closed"
	case ErrKindTypeMismatch:
		return "type mismatch"
	case ErrKindScopeClosed:
		return "scope closed"
	case ErrKindStaleHandle:
		return "stale handle"
	case ErrKindInvalidHandle:
		return "invalid handle"
	case ErrKindScopeOrder:
		return "scope order"
	case ErrKindCollecting:
		return "collecting"
	case ErrKindFinalizer:
		return "finalizer error"
	default:
		return "error"
	}
}

// Code returns the error code associated with the kind.
func (k ErrorKind) Code() ErrorCode {
	switch k {
	case ErrKindOutOfMemory:
		return G1001
	case ErrKindInvalidCapacity:
		return G1002
	case ErrKindHeapClosed:
		return G1003
	case ErrKindTypeMismatch:
		return G2001
	case ErrKindScopeClosed:
		return G2002
	case ErrKindStaleHandle:
		return G2003
	case ErrKindInvalidHandle:
		return G2004
	case ErrKindScopeOrder:
		return G2005
	case ErrKindCollecting:
		return G3001
	case ErrKindFinalizer:
		return G3002
	default:
		return ""
	}
}

// IsFatal reports whether errors of this kind indicate a host programming
// error rather than a recoverable condition.
func (k ErrorKind) IsFatal() bool {
	switch k {
	case ErrKindStaleHandle, ErrKindScopeOrder:
		return true
	default:
		return false
	}
}

// Error is the error type returned by every heap operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s [%s]", e.Kind, e.Kind.Code())
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Kind.Code(), e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. This lets callers
// compare against the package sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Code returns the error code of the error.
func (e *Error) Code() ErrorCode {
	return e.Kind.Code()
}

// IsFatal returns whether the error is considered fatal (unrecoverable).
func (e *Error) IsFatal() bool {
	return e.Kind.IsFatal()
}

// WithCause wraps the error with a cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a new Error of the given kind.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a new Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for use with errors.Is.
var (
	ErrOutOfMemory     = &Error{Kind: ErrKindOutOfMemory}
	ErrInvalidCapacity = &Error{Kind: ErrKindInvalidCapacity}
	ErrHeapClosed      = &Error{Kind: ErrKindHeapClosed}
	ErrTypeMismatch    = &Error{Kind: ErrKindTypeMismatch}
	ErrScopeClosed     = &Error{Kind: ErrKindScopeClosed}
	ErrStaleHandle     = &Error{Kind: ErrKindStaleHandle}
	ErrInvalidHandle   = &Error{Kind: ErrKindInvalidHandle}
	ErrScopeOrder      = &Error{Kind: ErrKindScopeOrder}
	ErrCollecting      = &Error{Kind: ErrKindCollecting}
	ErrFinalizer       = &Error{Kind: ErrKindFinalizer}
)
