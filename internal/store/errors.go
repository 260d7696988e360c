package store

import "errors"

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates a conditional update did not match the row's
	// current state, or a unique key already exists.
	ErrConflict = errors.New("conflict")
)
