// Package storage defines the vault file-system abstraction — the corpus
// provider the index builds from.
package storage

import "github.com/starford/gebo/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every note file under dir (relative to
	// the vault root; empty for the whole vault).
	List(dir string) ([]models.NoteMetadata, error)
	// Stat returns metadata for the single note file at path.
	Stat(path string) (models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to vault root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to vault root).
	Move(oldPath, newPath string) error
	// Extension returns the note file extension (including the dot).
	Extension() string
}
