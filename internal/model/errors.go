package model

import "errors"

var (
	// ErrNotFound is returned by stores and services for a missing project,
	// task, entry, category or import.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that clashes with existing state.
	ErrConflict = errors.New("conflict")
)
