package index

import (
	"github.com/starford/gebo/internal/models"
)

// Snapshot is an immutable view of the index, swapped in atomically after
// every committed mutation. It implements resolver.Corpus so ad-hoc
// resolution queries run against the same committed state readers see.
type Snapshot struct {
	Records map[models.NoteID]models.NoteRecord
	// Outgoing holds every edge leaving a note (resolved and unresolved),
	// in document order; it always reflects that note's latest parse.
	Outgoing map[models.NoteID][]models.ResolvedLink
	// Incoming holds resolved edges pointing into a note, sorted by
	// source path then line.
	Incoming map[models.NoteID][]models.ResolvedLink
	// Placeholders buckets unresolved edges by normalized target name,
	// each bucket sorted by source path then line.
	Placeholders map[string][]models.ResolvedLink
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Records:      map[models.NoteID]models.NoteRecord{},
		Outgoing:     map[models.NoteID][]models.ResolvedLink{},
		Incoming:     map[models.NoteID][]models.ResolvedLink{},
		Placeholders: map[string][]models.ResolvedLink{},
	}
}

// buildSnapshot deep-copies state into a fresh immutable Snapshot with
// deterministic edge ordering.
func buildSnapshot(st *state) *Snapshot {
	snap := emptySnapshot()
	for h, rec := range st.records {
		snap.Records[rec.ID] = rec
		if out := st.outgoing[h]; len(out) > 0 {
			snap.Outgoing[rec.ID] = append([]models.ResolvedLink(nil), out...)
		}
		if in := st.incoming[h]; len(in) > 0 {
			edges := append([]models.ResolvedLink(nil), in...)
			sortEdges(edges)
			snap.Incoming[rec.ID] = edges
		}
	}
	for name, bucket := range st.placeholders {
		edges := append([]models.ResolvedLink(nil), bucket...)
		sortEdges(edges)
		snap.Placeholders[name] = edges
	}
	return snap
}

// stateFromSnapshot reconstructs writer state from a snapshot (used when
// restoring the cached snapshot at startup).
func stateFromSnapshot(snap *Snapshot) *state {
	st := newState()
	for _, rec := range snap.Records {
		st.addRecord(rec)
	}
	for id, edges := range snap.Outgoing {
		if h, ok := st.lookup(id); ok {
			st.setOutgoing(h, append([]models.ResolvedLink(nil), edges...))
		}
	}
	return st
}

// Lookup implements resolver.Corpus.
func (s *Snapshot) Lookup(id models.NoteID) (models.NoteRecord, bool) {
	rec, ok := s.Records[id]
	return rec, ok
}

// ByBasename implements resolver.Corpus (case-sensitive).
func (s *Snapshot) ByBasename(name string) []models.NoteRecord {
	var out []models.NoteRecord
	for id, rec := range s.Records {
		if id.Basename() == name {
			out = append(out, rec)
		}
	}
	return out
}

// ByBasenameFold implements resolver.Corpus (case-insensitive).
func (s *Snapshot) ByBasenameFold(name string) []models.NoteRecord {
	norm := models.NormalizeName(name)
	var out []models.NoteRecord
	for id, rec := range s.Records {
		if models.NormalizeName(id.Basename()) == norm {
			out = append(out, rec)
		}
	}
	return out
}
