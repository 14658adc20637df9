package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a conditional write lost against a
	// concurrent change: the driver was already engaged or the ride was no
	// longer in the expected status.
	ErrConflict = errors.New("conflicting update")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate entity")
)
