package index

import (
	"sort"

	"github.com/starford/gebo/internal/models"
)

// OrphanReport classifies notes by their edge degree. Only resolved edges
// count: a note whose every outgoing reference is a placeholder has no
// resolved outgoing links.
type OrphanReport struct {
	Isolated   []models.NoteID `json:"isolated"`
	SourceOnly []models.NoteID `json:"source_only"`
	SinkOnly   []models.NoteID `json:"sink_only"`
}

// PlaceholderGroup is one unresolved target with every reference to it.
type PlaceholderGroup struct {
	Target string                `json:"target"`
	Refs   []models.ResolvedLink `json:"refs"`
}

// Orphans recomputes the orphan classification from the snapshot.
// Results are sorted by note id.
func (s *Snapshot) Orphans() OrphanReport {
	var report OrphanReport
	for id := range s.Records {
		out := false
		for _, e := range s.Outgoing[id] {
			if e.IsResolved() {
				out = true
				break
			}
		}
		in := len(s.Incoming[id]) > 0

		switch {
		case !out && !in:
			report.Isolated = append(report.Isolated, id)
		case out && !in:
			report.SourceOnly = append(report.SourceOnly, id)
		case !out && in:
			report.SinkOnly = append(report.SinkOnly, id)
		}
	}
	sortIDs(report.Isolated)
	sortIDs(report.SourceOnly)
	sortIDs(report.SinkOnly)
	return report
}

// PlaceholderGroups returns every placeholder bucket sorted by normalized
// name; refs within a bucket are already sorted by source path then line.
func (s *Snapshot) PlaceholderGroups() []PlaceholderGroup {
	groups := make([]PlaceholderGroup, 0, len(s.Placeholders))
	for name, refs := range s.Placeholders {
		groups = append(groups, PlaceholderGroup{Target: name, Refs: refs})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Target < groups[j].Target })
	return groups
}

// Orphans is the Store-level convenience over the current snapshot.
func (s *Store) Orphans() OrphanReport {
	return s.Snapshot().Orphans()
}

// Placeholders is the Store-level convenience over the current snapshot.
func (s *Store) Placeholders() []PlaceholderGroup {
	return s.Snapshot().PlaceholderGroups()
}

func sortIDs(ids []models.NoteID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
