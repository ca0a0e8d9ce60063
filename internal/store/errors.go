package store

import "errors"

// Sentinel errors for entity store operations.
var (
	// ErrNotFound indicates no record exists for the requested unique ID.
	ErrNotFound = errors.New("store: entity not found")
)
