// Package index maintains the bidirectional link graph over a note vault:
// outgoing references, backlinks, and placeholders for unresolved targets.
package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/starford/gebo/internal/models"
	"github.com/starford/gebo/internal/parser"
	"github.com/starford/gebo/internal/resolver"
	"github.com/starford/gebo/internal/storage"
)

// handle is a stable arena id for a note. Graph maps are keyed by handle
// rather than by record pointers, so cyclic reference chains (A↔B) never
// create ownership cycles.
type handle int

// state is the mutable graph owned by the store's single writer. It is
// never exposed; readers only ever see immutable Snapshots.
type state struct {
	next    handle
	byID    map[models.NoteID]handle
	records map[handle]models.NoteRecord
	// byBase groups handles by normalized basename for candidate lookup
	// and placeholder promotion.
	byBase map[string][]handle

	outgoing map[handle][]models.ResolvedLink
	incoming map[handle][]models.ResolvedLink
	// placeholders buckets unresolved edges by normalized target name.
	placeholders map[string][]models.ResolvedLink
}

func newState() *state {
	return &state{
		byID:         make(map[models.NoteID]handle),
		records:      make(map[handle]models.NoteRecord),
		byBase:       make(map[string][]handle),
		outgoing:     make(map[handle][]models.ResolvedLink),
		incoming:     make(map[handle][]models.ResolvedLink),
		placeholders: make(map[string][]models.ResolvedLink),
	}
}

// Store owns one vault's backlink index. All mutations are serialized
// through its mutex; readers operate on the atomically swapped Snapshot
// and never observe a half-applied update.
type Store struct {
	mu    sync.Mutex
	st    *state
	snap  atomic.Pointer[Snapshot]
	store storage.Provider
	res   *resolver.Resolver
	cache *Cache
	log   *slog.Logger

	// rebuildGen supersedes in-flight rebuilds: only the result of the
	// newest requested rebuild is ever swapped in.
	rebuildGen atomic.Int64
	// deltaGen counts committed single-file deltas. A rebuild that scanned
	// the vault before a delta landed must not swap its stale result in.
	deltaGen atomic.Int64
}

// NewStore creates an empty Store over the given corpus provider.
// cache may be nil to disable snapshot caching.
func NewStore(store storage.Provider, res *resolver.Resolver, cache *Cache, logger *slog.Logger) *Store {
	s := &Store{
		st:    newState(),
		store: store,
		res:   res,
		cache: cache,
		log:   logger,
	}
	s.snap.Store(emptySnapshot())
	return s
}

// Close releases the snapshot cache, if any.
func (s *Store) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// Snapshot returns the current immutable view of the index.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// OutgoingLinks returns every edge (resolved and unresolved) leaving id,
// in document order.
func (s *Store) OutgoingLinks(id models.NoteID) []models.ResolvedLink {
	return s.Snapshot().Outgoing[id]
}

// Backlinks returns every resolved edge pointing into id.
func (s *Store) Backlinks(id models.NoteID) []models.ResolvedLink {
	return s.Snapshot().Incoming[id]
}

// ResolveReference resolves raw target text as if it were written in note
// from. Returns the winning id and full candidate list; ok is false when
// nothing resolves. Used for hover, autocomplete, and navigation.
func (s *Store) ResolveReference(rawTarget string, from models.NoteID) (models.NoteID, []models.NoteID, bool) {
	spec, label, ok := parser.SplitTarget(rawTarget)
	if !ok {
		return "", nil, false
	}
	snap := s.Snapshot()
	res := s.res.Resolve(snap, models.RawReference{
		Source: from,
		Target: spec,
		Label:  label,
	})
	if !res.Link.IsResolved() {
		return "", nil, false
	}
	return res.Link.Target, res.Candidates, true
}

// ---- internal state maintenance (callers hold s.mu) ----

// lookup returns the handle for id.
func (st *state) lookup(id models.NoteID) (handle, bool) {
	h, ok := st.byID[id]
	return h, ok
}

// addRecord registers a note and returns its handle. The caller must have
// checked that id is not already present.
func (st *state) addRecord(rec models.NoteRecord) handle {
	h := st.next
	st.next++
	st.byID[rec.ID] = h
	st.records[h] = rec
	base := models.NormalizeName(rec.ID.Basename())
	st.byBase[base] = append(st.byBase[base], h)
	return h
}

// dropRecord removes a note record and its basename index entry. Edge
// cleanup is the caller's responsibility.
func (st *state) dropRecord(h handle) {
	rec := st.records[h]
	delete(st.byID, rec.ID)
	delete(st.records, h)
	base := models.NormalizeName(rec.ID.Basename())
	hs := st.byBase[base]
	for i, other := range hs {
		if other == h {
			st.byBase[base] = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(st.byBase[base]) == 0 {
		delete(st.byBase, base)
	}
	delete(st.outgoing, h)
	delete(st.incoming, h)
}

// setOutgoing replaces h's outgoing edge set, diffing against the old one:
// the source's contributions are dropped from every previously referenced
// incoming set and placeholder bucket, then the new edges are inserted.
// Targets not involved in the change are untouched.
func (st *state) setOutgoing(h handle, edges []models.ResolvedLink) {
	source := st.records[h].ID

	for _, old := range st.outgoing[h] {
		if old.IsResolved() {
			if th, ok := st.byID[old.Target]; ok {
				st.incoming[th] = removeBySource(st.incoming[th], source)
			}
		} else {
			st.removePlaceholder(old.Unresolved, source)
		}
	}

	if len(edges) == 0 {
		delete(st.outgoing, h)
	} else {
		st.outgoing[h] = edges
	}

	for _, e := range edges {
		if e.IsResolved() {
			if th, ok := st.byID[e.Target]; ok {
				st.incoming[th] = append(st.incoming[th], e)
			}
		} else {
			st.placeholders[e.Unresolved] = append(st.placeholders[e.Unresolved], e)
		}
	}
}

// removePlaceholder drops source's edges from one placeholder bucket.
func (st *state) removePlaceholder(name string, source models.NoteID) {
	kept := removeBySource(st.placeholders[name], source)
	if len(kept) == 0 {
		delete(st.placeholders, name)
	} else {
		st.placeholders[name] = kept
	}
}

func removeBySource(edges []models.ResolvedLink, source models.NoteID) []models.ResolvedLink {
	var kept []models.ResolvedLink
	for _, e := range edges {
		if e.Source != source {
			kept = append(kept, e)
		}
	}
	return kept
}

// ---- resolver.Corpus over state ----

// Lookup implements resolver.Corpus.
func (st *state) Lookup(id models.NoteID) (models.NoteRecord, bool) {
	if h, ok := st.byID[id]; ok {
		return st.records[h], true
	}
	return models.NoteRecord{}, false
}

// ByBasename implements resolver.Corpus (case-sensitive).
func (st *state) ByBasename(name string) []models.NoteRecord {
	var out []models.NoteRecord
	for _, h := range st.byBase[models.NormalizeName(name)] {
		rec := st.records[h]
		if rec.ID.Basename() == name {
			out = append(out, rec)
		}
	}
	return out
}

// ByBasenameFold implements resolver.Corpus (case-insensitive).
func (st *state) ByBasenameFold(name string) []models.NoteRecord {
	var out []models.NoteRecord
	for _, h := range st.byBase[models.NormalizeName(name)] {
		out = append(out, st.records[h])
	}
	return out
}

// parseAndResolve scans content for note id and resolves every reference
// against the current state.
func (s *Store) parseAndResolve(st *state, id models.NoteID, content []byte) []models.ResolvedLink {
	refs := parser.Scan(id, string(content))
	if len(refs) == 0 {
		return nil
	}
	edges := make([]models.ResolvedLink, 0, len(refs))
	for _, ref := range refs {
		edges = append(edges, s.res.Resolve(st, ref).Link)
	}
	return edges
}

// publish verifies the invariants, swaps in a fresh snapshot, and — on an
// invariant violation — schedules a recovering full rebuild instead of
// serving the corrupt state. Callers hold s.mu.
func (s *Store) publish() {
	s.deltaGen.Add(1)
	if err := checkInvariants(s.st); err != nil {
		s.log.Error("index: invariant violation, scheduling rebuild", slog.String("error", err.Error()))
		go func() {
			if rebuildErr := s.Rebuild(context.Background()); rebuildErr != nil {
				s.log.Error("index: recovery rebuild failed", slog.String("error", rebuildErr.Error()))
			}
		}()
		return
	}
	s.snap.Store(buildSnapshot(s.st))
}

// idForPath converts a vault-relative file path to a note id.
func (s *Store) idForPath(path string) models.NoteID {
	path = strings.TrimSuffix(filepath.ToSlash(path), s.store.Extension())
	return models.NoteID(path)
}

// pathForID converts a note id back to its vault-relative file path.
func (s *Store) pathForID(id models.NoteID) string {
	return string(id) + s.store.Extension()
}

// sortEdges orders edges by source path, then line, then raw text. Used
// when building deterministic snapshot views.
func sortEdges(edges []models.ResolvedLink) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		if edges[i].Line != edges[j].Line {
			return edges[i].Line < edges[j].Line
		}
		return edges[i].RawText < edges[j].RawText
	})
}
