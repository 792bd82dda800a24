package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an
	// existing key on a store that does not upsert.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails at the
	// store boundary.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBadTransition is returned when a run-status update violates
	// the pending -> running -> completed|failed machine.
	ErrBadTransition = errors.New("illegal run status transition")
)
