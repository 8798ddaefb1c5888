package index

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/gebo/internal/apperr"
	"github.com/starford/gebo/internal/checksum"
	"github.com/starford/gebo/internal/models"
	"github.com/starford/gebo/internal/parser"
)

// The Apply* methods are the sole mutation path after the initial build.
// Each one commits a single-file delta, re-verifies the graph, and swaps
// in a fresh snapshot before returning, so concurrent readers only ever
// see fully applied states.

// ApplyCreate registers a newly observed note, resolves its references,
// and promotes every placeholder whose normalized name matches the new
// note's basename.
func (s *Store) ApplyCreate(path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.st.lookup(s.idForPath(path)); ok {
		// Watcher create/write races can deliver a known note: degrade to
		// edit semantics.
		s.editLocked(h, content)
	} else {
		s.createLocked(path, content)
	}
	s.publish()
	return nil
}

// noteModTime reads the on-disk modification time for path. Deltas must
// carry the same mtime a full rebuild would see, or the most-recent
// tie-break rule could pick different winners on the two paths.
func (s *Store) noteModTime(path string) time.Time {
	if m, err := s.store.Stat(path); err == nil {
		return m.UpdatedAt
	}
	return time.Now()
}

// createLocked registers the note and runs placeholder promotion.
func (s *Store) createLocked(path string, content []byte) {
	id := s.idForPath(path)
	h := s.st.addRecord(models.NoteRecord{
		ID:       id,
		Path:     path,
		Checksum: checksum.Sum(content),
		ModTime:  s.noteModTime(path),
	})
	s.st.setOutgoing(h, s.parseAndResolve(s.st, id, content))
	s.promote(models.NormalizeName(id.Basename()))
}

// ApplyEdit re-parses and re-resolves a single note's new content. Only
// the diff against its previous outgoing set touches other notes.
func (s *Store) ApplyEdit(path string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.st.lookup(s.idForPath(path)); ok {
		s.editLocked(h, content)
	} else {
		s.createLocked(path, content)
	}
	s.publish()
	return nil
}

// editLocked updates the record and replaces the outgoing set.
func (s *Store) editLocked(h handle, content []byte) {
	rec := s.st.records[h]
	rec.Checksum = checksum.Sum(content)
	rec.ModTime = s.noteModTime(rec.Path)
	s.st.records[h] = rec
	s.st.setOutgoing(h, s.parseAndResolve(s.st, rec.ID, content))
}

// ApplyDelete removes a note: its outgoing edges disappear from every
// target's incoming set, and every edge that pointed into it is demoted
// to a placeholder under the deleted note's normalized basename.
func (s *Store) ApplyDelete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.idForPath(path)
	h, ok := s.st.lookup(id)
	if !ok {
		return apperr.ErrNotFound
	}
	s.deleteLocked(h)
	s.publish()
	return nil
}

// deleteLocked performs delete bookkeeping without publishing.
func (s *Store) deleteLocked(h handle) {
	id := s.st.records[h].ID

	// Drop this note's own contributions first.
	s.st.setOutgoing(h, nil)

	// Demote inbound edges: their target no longer exists.
	bucket := models.NormalizeName(id.Basename())
	for _, e := range append([]models.ResolvedLink(nil), s.st.incoming[h]...) {
		sh, ok := s.st.lookup(e.Source)
		if !ok {
			continue
		}
		demoted := e
		demoted.Target = ""
		demoted.Ambiguous = false
		demoted.Unresolved = bucket
		replaceEdge(s.st.outgoing[sh], e, demoted)
		s.st.placeholders[bucket] = append(s.st.placeholders[bucket], demoted)
	}

	s.st.dropRecord(h)
}

// promote re-resolves every edge in the placeholder bucket. Resolution is
// re-run per raw reference because ambiguity rules may now apply; an edge
// that still fails to resolve stays in the bucket.
func (s *Store) promote(bucket string) {
	pending := append([]models.ResolvedLink(nil), s.st.placeholders[bucket]...)
	for _, old := range pending {
		raw, ok := rawFromEdge(old)
		if !ok {
			continue
		}
		res := s.res.Resolve(s.st, raw)
		if !res.Link.IsResolved() {
			continue
		}
		sh, ok := s.st.lookup(old.Source)
		if !ok {
			continue
		}
		replaceEdge(s.st.outgoing[sh], old, res.Link)
		s.st.placeholders[bucket] = removeOneEdge(s.st.placeholders[bucket], old)
		if th, ok := s.st.lookup(res.Link.Target); ok {
			s.st.incoming[th] = append(s.st.incoming[th], res.Link)
		}
	}
	if len(s.st.placeholders[bucket]) == 0 {
		delete(s.st.placeholders, bucket)
	}
}

// rawFromEdge reconstructs the raw reference an edge was resolved from,
// using its stored literal text.
func rawFromEdge(e models.ResolvedLink) (models.RawReference, bool) {
	text := e.RawText
	kind := models.KindLink
	if strings.HasPrefix(text, "!") {
		kind = models.KindEmbed
		text = text[1:]
	}
	if !strings.HasPrefix(text, "[[") || !strings.HasSuffix(text, "]]") {
		return models.RawReference{}, false
	}
	spec, label, ok := parser.SplitTarget(text[2 : len(text)-2])
	if !ok {
		return models.RawReference{}, false
	}
	return models.RawReference{
		Source:  e.Source,
		Kind:    kind,
		Target:  spec,
		Label:   label,
		Line:    e.Line,
		Context: e.Context,
		RawText: e.RawText,
	}, true
}

// replaceEdge swaps old for new in place, matching by edge identity.
func replaceEdge(edges []models.ResolvedLink, old, repl models.ResolvedLink) {
	key := edgeKey(old)
	for i := range edges {
		if edgeKey(edges[i]) == key {
			edges[i] = repl
			return
		}
	}
}

// removeOneEdge removes the first edge matching old's identity.
func removeOneEdge(edges []models.ResolvedLink, old models.ResolvedLink) []models.ResolvedLink {
	key := edgeKey(old)
	for i := range edges {
		if edgeKey(edges[i]) == key {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}

// RewriteFailure reports one referencing file the rename could not update.
type RewriteFailure struct {
	Note   models.NoteID `json:"note"`
	Reason string        `json:"reason"`
}

// RenameReport is the partial-success result of a rename: which
// referencing notes had their link text rewritten and which did not.
// Failed notes keep their old literal text; their edges degrade to
// placeholders under the old name, so the index stays consistent.
type RenameReport struct {
	OldID     models.NoteID    `json:"old_id"`
	NewID     models.NoteID    `json:"new_id"`
	Rewritten []models.NoteID  `json:"rewritten"`
	Failed    []RewriteFailure `json:"failed,omitempty"`
}

// ApplyRename moves oldID to newID in the index and rewrites the literal
// reference text (preserving #section and |label) in every note that
// linked to oldID. The note file itself must already live at newID's path.
// Per-file rewrite failures do not abort the rename.
func (s *Store) ApplyRename(oldID, newID models.NoteID) (*RenameReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.st.lookup(oldID)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if _, exists := s.st.lookup(newID); exists {
		return nil, apperr.ErrAlreadyExists
	}

	newPath := s.pathForID(newID)
	content, err := s.store.Read(newPath)
	if err != nil {
		return nil, fmt.Errorf("index: rename: read %s: %w", newPath, err)
	}

	// Referencing notes and the exact raw texts that pointed at oldID,
	// captured before delete bookkeeping demotes them.
	type pendingRewrite struct {
		source models.NoteID
		edges  []models.ResolvedLink
	}
	var pending []pendingRewrite
	var selfEdges []models.ResolvedLink
	seen := map[models.NoteID]int{}
	for _, e := range s.st.incoming[h] {
		if e.Source == oldID {
			selfEdges = append(selfEdges, e)
			continue
		}
		i, ok := seen[e.Source]
		if !ok {
			i = len(pending)
			seen[e.Source] = i
			pending = append(pending, pendingRewrite{source: e.Source})
		}
		pending[i].edges = append(pending[i].edges, e)
	}

	// Delete(old) + Create(new) bookkeeping.
	s.deleteLocked(h)

	report := &RenameReport{OldID: oldID, NewID: newID}

	// Self-links must be retargeted in the content before the re-parse
	// under newID: the literal old text would otherwise resolve against a
	// corpus that no longer contains oldID and demote to a placeholder.
	if len(selfEdges) > 0 {
		updated, changed := rewriteContentLinks(content, selfEdges, newID)
		if changed {
			if err := s.store.Write(newPath, updated); err != nil {
				s.log.Warn("index: rename rewrite failed",
					slog.String("note", string(newID)),
					slog.String("error", err.Error()))
				report.Failed = append(report.Failed, RewriteFailure{Note: newID, Reason: err.Error()})
			} else {
				content = updated
				report.Rewritten = append(report.Rewritten, newID)
			}
		} else {
			report.Rewritten = append(report.Rewritten, newID)
		}
	}

	nh := s.st.addRecord(models.NoteRecord{
		ID:       newID,
		Path:     newPath,
		Checksum: checksum.Sum(content),
		ModTime:  s.noteModTime(newPath),
	})
	s.st.setOutgoing(nh, s.parseAndResolve(s.st, newID, content))
	s.promote(models.NormalizeName(newID.Basename()))

	// Rewrite step: per-file, independent, failure-tolerant.
	for _, p := range pending {
		if err := s.rewriteReferences(p.source, p.edges, newID); err != nil {
			s.log.Warn("index: rename rewrite failed",
				slog.String("note", string(p.source)),
				slog.String("error", err.Error()))
			report.Failed = append(report.Failed, RewriteFailure{Note: p.source, Reason: err.Error()})
			continue
		}
		report.Rewritten = append(report.Rewritten, p.source)
	}

	s.publish()
	return report, nil
}
