// Package errs provides the shared error taxonomy used across the L2
// core: every component surfaces failures through one of the categories
// below rather than ad-hoc error strings, so callers can branch on
// Category instead of parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Category classifies why an operation failed.
type Category int

const (
	// Validation marks malformed input: bad hex length, empty address,
	// zero amount, a state root that doesn't match its snapshot.
	Validation Category = iota
	// NotFound marks a reference to an id that does not exist.
	NotFound
	// Conflict marks AlreadyExists / Locked / duplicate-escrow cases.
	Conflict
	// InsufficientFunds marks a debit or transfer against an underfunded
	// account.
	InsufficientFunds
	// Unauthorized marks an unregistered peg-out anchor, an inactive
	// signer, or a federation below quorum.
	Unauthorized
	// Transient marks a remote call that failed and should be retried:
	// RPC timeouts, transient HTTP errors.
	Transient
	// Consistency marks an observed reorg invalidation cascade or an
	// anchor that lost its confirming block.
	Consistency
	// Fatal marks storage corruption, a canonicalisation mismatch, or an
	// engaged bridge emergency mode.
	Fatal
)

func (c Category) String() string {
	switch c {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case InsufficientFunds:
		return "insufficient_funds"
	case Unauthorized:
		return "unauthorized"
	case Transient:
		return "transient"
	case Consistency:
		return "consistency"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a structured outcome: a category plus a human-readable reason
// and, optionally, the cause it wraps.
type Error struct {
	Category Category
	Reason   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a category error with no wrapped cause.
func New(cat Category, reason string) *Error {
	return &Error{Category: cat, Reason: reason}
}

// Wrap adds a category and reason to an existing error. It returns nil if
// err is nil, matching the teacher's utils.Wrap semantics.
func Wrap(cat Category, reason string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Category: cat, Reason: reason, Cause: err}
}

// Is reports whether err carries the given category.
func Is(err error, cat Category) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == cat
	}
	return false
}

// CategoryOf extracts the category of err, returning ok=false if err is
// not (or does not wrap) an *Error.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return 0, false
}
