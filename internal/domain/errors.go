package domain

import "errors"

var (
	// ErrValidation marks malformed or out-of-range caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to an entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation disallowed in the entity's current state,
	// including overlapping bookings.
	ErrConflict = errors.New("conflict")
)
