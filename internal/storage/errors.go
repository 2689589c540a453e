package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds is returned when a mutation would take a
	// balance row below zero. The whole mutation is rolled back.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict is returned when a concurrent modification prevented the
	// mutation from committing. Callers retry once before surfacing it.
	ErrConflict = errors.New("concurrent modification conflict")
)
