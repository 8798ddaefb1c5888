// Package resolver maps raw wiki references onto notes in the corpus,
// applying a deterministic disambiguation policy when basenames collide.
package resolver

import (
	"path"
	"sort"
	"strings"

	"github.com/starford/gebo/internal/models"
)

// Corpus is the read-only view of known notes the resolver works against.
type Corpus interface {
	// Lookup returns the record for an exact note id.
	Lookup(id models.NoteID) (models.NoteRecord, bool)
	// ByBasename returns every record whose basename equals name.
	ByBasename(name string) []models.NoteRecord
	// ByBasenameFold is the case-insensitive variant of ByBasename.
	ByBasenameFold(name string) []models.NoteRecord
}

// Resolution is the outcome of resolving one raw reference: a single
// winning edge plus the full candidate list, so callers can surface
// ambiguity without blocking resolution.
type Resolution struct {
	Link       models.ResolvedLink
	Candidates []models.NoteID
}

// Resolver resolves raw references under a tie-break policy.
type Resolver struct {
	policy Policy
}

// New creates a Resolver with the given policy.
func New(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Resolve maps one raw reference to a ResolvedLink. It never fails: an
// unknown target produces an unresolved edge, and a name collision is
// settled by the policy with the loser list retained in Candidates.
func (r *Resolver) Resolve(c Corpus, ref models.RawReference) Resolution {
	link := models.ResolvedLink{
		Source:  ref.Source,
		Section: ref.Target.Section,
		Kind:    ref.Kind,
		Line:    ref.Line,
		Context: ref.Context,
		RawText: ref.RawText,
	}

	if ref.Target.HasPathHint() {
		if rec, ok := lookupByPath(c, ref.Target.Path); ok {
			link.Target = rec.ID
			return Resolution{Link: link, Candidates: []models.NoteID{rec.ID}}
		}
		link.Unresolved = models.NormalizeName(ref.Target.Name)
		return Resolution{Link: link}
	}

	cands := c.ByBasename(ref.Target.Name)
	if len(cands) == 0 {
		cands = c.ByBasenameFold(ref.Target.Name)
	}

	switch len(cands) {
	case 0:
		link.Unresolved = models.NormalizeName(ref.Target.Name)
		return Resolution{Link: link}
	case 1:
		link.Target = cands[0].ID
		return Resolution{Link: link, Candidates: []models.NoteID{cands[0].ID}}
	}

	sortRecords(cands)
	winner := r.policy.Pick(ref.Source, cands)
	link.Target = winner.ID
	link.Ambiguous = true

	ids := make([]models.NoteID, len(cands))
	for i, rec := range cands {
		ids[i] = rec.ID
	}
	return Resolution{Link: link, Candidates: ids}
}

// lookupByPath matches a path hint against the corpus, extension-agnostic:
// "topics/note" and "topics/note.md" both hit the note id "topics/note".
func lookupByPath(c Corpus, hint string) (models.NoteRecord, bool) {
	cleaned := path.Clean(hint)
	if rec, ok := c.Lookup(models.NoteID(cleaned)); ok {
		return rec, true
	}
	if ext := path.Ext(cleaned); ext != "" {
		if rec, ok := c.Lookup(models.NoteID(strings.TrimSuffix(cleaned, ext))); ok {
			return rec, true
		}
	}
	return models.NoteRecord{}, false
}

func sortRecords(recs []models.NoteRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
}
