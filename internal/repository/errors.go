package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned by conditional writes when the stored state no
	// longer matches what the caller read.
	ErrConflict = errors.New("entity changed concurrently")

	// ErrDuplicate is returned when a create collides with a unique constraint.
	ErrDuplicate = errors.New("entity already exists")
)
