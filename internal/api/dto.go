package api

import (
	"time"

	"github.com/starford/gebo/internal/index"
	"github.com/starford/gebo/internal/models"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"topics/linking.md" validate:"required"`
	Content string `json:"content" example:"# Linking\nSee [[index]]." validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// RenameNoteRequest is the request body for renaming a note.
type RenameNoteRequest struct {
	NewPath string `json:"new_path" example:"topics/links.md" validate:"required"`
}

// NoteDetail is the full note response type.
type NoteDetail struct {
	Path      string                `json:"path"`
	Content   string                `json:"content"`
	Checksum  string                `json:"checksum"`
	Outgoing  []models.ResolvedLink `json:"outgoing"`
	Backlinks []models.ResolvedLink `json:"backlinks"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Outgoing  int       `json:"outgoing"`
	Backlinks int       `json:"backlinks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// LinksResponse wraps one direction of a note's edges.
type LinksResponse struct {
	Links []models.ResolvedLink `json:"links" validate:"required"`
}

// PlaceholdersResponse wraps the unresolved reference groups.
type PlaceholdersResponse struct {
	Placeholders []index.PlaceholderGroup `json:"placeholders" validate:"required"`
}

// ResolveResult is the outcome of resolving raw link text.
type ResolveResult struct {
	Path       string   `json:"path" example:"topics/linking.md" validate:"required"`
	Candidates []string `json:"candidates" validate:"required"`
	Ambiguous  bool     `json:"ambiguous"`
}

// GraphNode is a node in the link graph. Placeholder nodes stand in for
// targets that no note currently satisfies.
type GraphNode struct {
	ID          string `json:"id" example:"topics/linking.md" validate:"required"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// GraphLink is an edge in the link graph.
type GraphLink struct {
	Source      string `json:"source" example:"topics/linking.md" validate:"required"`
	Target      string `json:"target" example:"index.md" validate:"required"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// GraphResponse wraps the link graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}
