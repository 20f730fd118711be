package storage

import "errors"

// Errors shared by every store implementation.
var (
	// ErrNotFound is returned when a requested document or record does
	// not exist, including a data directory that was never populated.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by stores that reject re-archiving an
	// event key instead of silently skipping it.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when a document fails validation
	// before it reaches the backend.
	ErrInvalidInput = errors.New("invalid input")
)
