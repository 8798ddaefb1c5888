package resolver

import (
	"fmt"

	"github.com/starford/gebo/internal/models"
)

// Rule names accepted in configuration.
const (
	RuleSameFolder    = "same-folder"
	RuleMostRecent    = "most-recent"
	RuleLexicographic = "lexicographic"
)

// Rule narrows a non-empty candidate list. A rule that would eliminate
// every candidate leaves the list unchanged instead.
type Rule func(source models.NoteID, cands []models.NoteRecord) []models.NoteRecord

// Policy is an ordered chain of tie-break rules. Rules run until a single
// candidate remains; if the chain finishes with several survivors, the
// lexicographically smallest path wins so the result stays deterministic.
type Policy struct {
	rules []Rule
}

// DefaultPolicy is the documented order: a candidate in the source note's
// folder, then the most recently modified, then smallest path.
func DefaultPolicy() Policy {
	return Policy{rules: []Rule{sameFolder, mostRecent, lexicographic}}
}

// NewPolicy builds a policy from an explicit rule chain. Used by tests and
// by configuration overrides.
func NewPolicy(rules ...Rule) Policy {
	return Policy{rules: rules}
}

// PolicyFromNames builds a policy from configured rule names.
func PolicyFromNames(names []string) (Policy, error) {
	if len(names) == 0 {
		return DefaultPolicy(), nil
	}
	var rules []Rule
	for _, name := range names {
		switch name {
		case RuleSameFolder:
			rules = append(rules, sameFolder)
		case RuleMostRecent:
			rules = append(rules, mostRecent)
		case RuleLexicographic:
			rules = append(rules, lexicographic)
		default:
			return Policy{}, fmt.Errorf("resolver: unknown tie-break rule %q", name)
		}
	}
	return Policy{rules: rules}, nil
}

// Pick returns the winning candidate. cands must be non-empty and sorted
// by path for determinism.
func (p Policy) Pick(source models.NoteID, cands []models.NoteRecord) models.NoteRecord {
	for _, rule := range p.rules {
		if len(cands) == 1 {
			break
		}
		cands = rule(source, cands)
	}
	return cands[0]
}

func sameFolder(source models.NoteID, cands []models.NoteRecord) []models.NoteRecord {
	folder := source.Folder()
	var kept []models.NoteRecord
	for _, rec := range cands {
		if rec.ID.Folder() == folder {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		return cands
	}
	return kept
}

func mostRecent(_ models.NoteID, cands []models.NoteRecord) []models.NoteRecord {
	newest := cands[0].ModTime
	for _, rec := range cands[1:] {
		if rec.ModTime.After(newest) {
			newest = rec.ModTime
		}
	}
	var kept []models.NoteRecord
	for _, rec := range cands {
		if rec.ModTime.Equal(newest) {
			kept = append(kept, rec)
		}
	}
	return kept
}

func lexicographic(_ models.NoteID, cands []models.NoteRecord) []models.NoteRecord {
	best := cands[0]
	for _, rec := range cands[1:] {
		if rec.Path < best.Path {
			best = rec
		}
	}
	return []models.NoteRecord{best}
}
