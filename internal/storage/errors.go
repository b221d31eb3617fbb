// Package storage defines sentinel errors shared by all storage backends.
package storage

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput indicates a malformed record was passed to a store.
	ErrInvalidInput = errors.New("invalid input")
)
