package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable classification carried by every
// engine error. Transport layers map kinds to status codes; clients decide
// retry behavior from the kind, never from the message.
type ErrorKind string

// Error kinds
const (
	// KindValidation: bad input, never retried.
	KindValidation ErrorKind = "validation"
	// KindRestricted: policy denial, never retried. Distinct from a funds
	// error so the UI can tell them apart.
	KindRestricted ErrorKind = "restricted"
	// KindInsufficientFunds: asset or fee balance too low, user must act.
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	// KindRateLimited: retry after the window elapses.
	KindRateLimited ErrorKind = "rate_limited"
	// KindExternal: chain RPC or custodian unreachable, caller retries with backoff.
	KindExternal ErrorKind = "external"
	// KindConflict: concurrent modification, retried once internally.
	KindConflict ErrorKind = "conflict"
	// KindNotFound: referenced entity does not exist.
	KindNotFound ErrorKind = "not_found"
)

// Error pairs a kind with a human message.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E builds a kinded error.
func E(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed.
// Unclassified errors report KindExternal: an unknown failure must never be
// presented as a user mistake.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternal
}
