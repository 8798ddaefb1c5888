package api

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/starford/gebo/internal/apperr"
	"github.com/starford/gebo/internal/checksum"
	"github.com/starford/gebo/internal/index"
	"github.com/starford/gebo/internal/models"
	"github.com/starford/gebo/internal/storage"
)

// EventSink receives index-changing events the file watcher cannot observe
// on its own. May be nil.
type EventSink interface {
	PublishRenameEvent(from, to string, rewritten, failed int)
}

// Service coordinates vault storage and the link index for the API layer.
type Service struct {
	store  storage.Provider
	idx    *index.Store
	events EventSink
}

// NewService creates a new API service. events may be nil.
func NewService(store storage.Provider, idx *index.Store, events EventSink) *Service {
	return &Service{store: store, idx: idx, events: events}
}

func (s *Service) idFor(path string) models.NoteID {
	return models.NoteID(strings.TrimSuffix(path, s.store.Extension()))
}

func (s *Service) pathFor(id models.NoteID) string {
	return string(id) + s.store.Extension()
}

// GetNote reads a note from storage and enriches it with both link
// directions from the index.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data), nil
}

// CreateNote writes a new note and registers it with the index.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.idx.ApplyCreate(path, content); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content), nil
}

// UpdateNote writes updated content with optimistic concurrency.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := s.idx.ApplyEdit(path, content); err != nil {
		return nil, err
	}
	return s.buildNoteDetail(path, content), nil
}

// DeleteNote removes a note from storage and the index. Inbound links to
// the deleted note degrade to placeholders.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.idx.ApplyDelete(path)
}

// RenameNote moves a note to a new path and rewrites the literal link text
// in every referencing note. Per-file rewrite failures are reported, not
// fatal.
func (s *Service) RenameNote(_ context.Context, oldPath, newPath string) (*index.RenameReport, error) {
	if _, err := s.store.Read(oldPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if _, err := s.store.Read(newPath); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Move(oldPath, newPath); err != nil {
		return nil, err
	}
	report, err := s.idx.ApplyRename(s.idFor(oldPath), s.idFor(newPath))
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		s.events.PublishRenameEvent(oldPath, newPath, len(report.Rewritten), len(report.Failed))
	}
	return report, nil
}

// ListNotes returns indexed notes sorted by path, with optional paging.
// limit <= 0 means no limit.
func (s *Service) ListNotes(_ context.Context, limit, offset int) ([]NoteListItem, int, error) {
	snap := s.idx.Snapshot()
	items := make([]NoteListItem, 0, len(snap.Records))
	for _, rec := range snap.Records {
		out := snap.Outgoing[rec.ID]
		in := snap.Incoming[rec.ID]
		items = append(items, NoteListItem{
			Path:      rec.Path,
			Checksum:  rec.Checksum,
			Outgoing:  len(out),
			Backlinks: len(in),
			UpdatedAt: rec.ModTime,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	total := len(items)
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

// Backlinks returns the resolved inbound edges of a note.
func (s *Service) Backlinks(_ context.Context, path string) ([]models.ResolvedLink, error) {
	id := s.idFor(path)
	if _, ok := s.idx.Snapshot().Records[id]; !ok {
		return nil, apperr.ErrNotFound
	}
	return nonNilLinks(s.idx.Backlinks(id)), nil
}

// OutgoingLinks returns a note's outbound edges, resolved and unresolved,
// in document order.
func (s *Service) OutgoingLinks(_ context.Context, path string) ([]models.ResolvedLink, error) {
	id := s.idFor(path)
	if _, ok := s.idx.Snapshot().Records[id]; !ok {
		return nil, apperr.ErrNotFound
	}
	return nonNilLinks(s.idx.OutgoingLinks(id)), nil
}

// Placeholders returns every unresolved target grouped by normalized name.
func (s *Service) Placeholders(_ context.Context) []index.PlaceholderGroup {
	groups := s.idx.Placeholders()
	if groups == nil {
		groups = []index.PlaceholderGroup{}
	}
	return groups
}

// Orphans classifies notes by link connectivity.
func (s *Service) Orphans(_ context.Context) index.OrphanReport {
	return s.idx.Orphans()
}

// ResolveReference resolves raw wiki-link text in the context of the note
// at fromPath, without touching storage.
func (s *Service) ResolveReference(_ context.Context, raw, fromPath string) (*ResolveResult, error) {
	target, candidates, ok := s.idx.ResolveReference(raw, s.idFor(fromPath))
	if !ok {
		return nil, apperr.ErrUnresolved
	}
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = s.pathFor(c)
	}
	return &ResolveResult{
		Path:       s.pathFor(target),
		Candidates: paths,
		Ambiguous:  len(candidates) > 1,
	}, nil
}

// Graph projects the index into a node/edge list. Unresolved references
// appear as placeholder nodes so dangling topology stays visible.
func (s *Service) Graph(_ context.Context) ([]GraphNode, []GraphLink) {
	snap := s.idx.Snapshot()

	ids := make([]models.NoteID, 0, len(snap.Records))
	for id := range snap.Records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make([]GraphNode, 0, len(ids)+len(snap.Placeholders))
	for _, id := range ids {
		nodes = append(nodes, GraphNode{ID: snap.Records[id].Path})
	}

	names := make([]string, 0, len(snap.Placeholders))
	for name := range snap.Placeholders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		nodes = append(nodes, GraphNode{ID: name, Placeholder: true})
	}

	links := make([]GraphLink, 0)
	for _, id := range ids {
		for _, e := range snap.Outgoing[id] {
			l := GraphLink{Source: snap.Records[id].Path}
			if e.IsResolved() {
				l.Target = s.pathFor(e.Target)
			} else {
				l.Target = models.NormalizeName(e.Unresolved)
				l.Placeholder = true
			}
			links = append(links, l)
		}
	}
	return nodes, links
}

// RebuildIndex forces a full rebuild from the vault.
func (s *Service) RebuildIndex(ctx context.Context) error {
	return s.idx.Rebuild(ctx)
}

func (s *Service) buildNoteDetail(path string, data []byte) *NoteDetail {
	id := s.idFor(path)
	return &NoteDetail{
		Path:      path,
		Content:   string(data),
		Checksum:  checksum.Sum(data),
		Outgoing:  nonNilLinks(s.idx.OutgoingLinks(id)),
		Backlinks: nonNilLinks(s.idx.Backlinks(id)),
		UpdatedAt: time.Now(),
	}
}

func nonNilLinks(links []models.ResolvedLink) []models.ResolvedLink {
	if links == nil {
		return []models.ResolvedLink{}
	}
	return links
}
