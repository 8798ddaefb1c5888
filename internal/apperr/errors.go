// Package apperr defines sentinel errors shared across service layers.
package apperr

import "errors"

var (
	// ErrNotFound marks a note path that is not in the vault or index.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an optimistic concurrency failure (checksum mismatch).
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExists marks a create or rename target that is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnresolved marks a reference that matches no indexed note.
	ErrUnresolved = errors.New("unresolved reference")
)
