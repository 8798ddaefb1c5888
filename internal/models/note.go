// Package models defines the domain types for Gebo.
package models

import (
	"path"
	"strings"
	"time"
)

// NoteID is the stable identifier of a note: its vault-relative path
// without the note extension. It changes only on rename/move.
type NoteID string

// Basename returns the final path element of the id.
func (id NoteID) Basename() string {
	return path.Base(string(id))
}

// Folder returns the directory portion of the id ("." for vault root).
func (id NoteID) Folder() string {
	return path.Dir(string(id))
}

// NoteRecord describes a note currently known to the index.
// A record is created when a file is first observed and destroyed when the
// file is deleted; on rename the old record is replaced by a new one.
type NoteRecord struct {
	ID       NoteID    `json:"id"`
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// NoteMetadata is a lightweight file listing entry from the corpus provider.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefKind distinguishes the reference forms the parser recognizes.
type RefKind int

const (
	// KindLink is a plain [[target]] reference.
	KindLink RefKind = iota
	// KindEmbed is an embed ![[target]] reference.
	KindEmbed
)

// String returns the wire name of the kind.
func (k RefKind) String() string {
	if k == KindEmbed {
		return "embed"
	}
	return "link"
}

// TargetSpec is the decomposed target of a raw reference:
// name[#section][|label], where a name containing '/' is a path hint.
type TargetSpec struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Section string `json:"section,omitempty"`
}

// HasPathHint reports whether the target was written as a vault-relative
// path rather than a bare basename.
func (t TargetSpec) HasPathHint() bool { return t.Path != "" }

// RawReference is one occurrence of a wiki reference in a note's text,
// produced fresh on every parse of that note.
type RawReference struct {
	Source  NoteID     `json:"source"`
	Kind    RefKind    `json:"kind"`
	Target  TargetSpec `json:"target"`
	Label   string     `json:"label,omitempty"`
	Line    int        `json:"line"`
	Context string     `json:"context"`
	// RawText is the literal matched text, brackets included. Rename
	// propagation rewrites this text in the source file.
	RawText string `json:"raw_text"`
}

// ResolvedLink is the authoritative edge type stored in the index.
// Exactly one of Target/Unresolved is set: Target for a resolved edge,
// Unresolved (the normalized target name) for a placeholder.
type ResolvedLink struct {
	Source     NoteID  `json:"source"`
	Target     NoteID  `json:"target,omitempty"`
	Unresolved string  `json:"unresolved,omitempty"`
	Section    string  `json:"section,omitempty"`
	Kind       RefKind `json:"kind"`
	Line       int     `json:"line"`
	Context    string  `json:"context,omitempty"`
	// Ambiguous is set when resolution had more than one candidate and the
	// tie-break policy picked the winner.
	Ambiguous bool `json:"ambiguous,omitempty"`
	// RawText mirrors RawReference.RawText for rewrite support.
	RawText string `json:"-"`
}

// IsResolved reports whether the edge points at an existing note.
func (l ResolvedLink) IsResolved() bool { return l.Target != "" }

// NormalizeName lower-cases and trims a target name so that [[Foo]] and
// [[foo]] collapse into the same placeholder bucket.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
