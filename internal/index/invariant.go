package index

import (
	"fmt"

	"github.com/starford/gebo/internal/models"
)

// checkInvariants verifies the structural guarantees of the graph:
//
//  1. every resolved edge lives in both its source's outgoing set and its
//     target's incoming set, with no extra copies anywhere;
//  2. every note id appearing in an edge maps to a known record;
//  3. every unresolved edge lives in exactly one placeholder bucket (the
//     one named by its normalized target) and never in an incoming set;
//  4. incoming sets and placeholder buckets contain nothing that the
//     latest parse of some source did not produce.
//
// A non-nil return is an internal defect; the store recovers by rebuilding.
func checkInvariants(st *state) error {
	resolved := map[string]int{}
	unresolvedCount := map[string]int{}

	for h, edges := range st.outgoing {
		src := st.records[h]
		for _, e := range edges {
			if e.Source != src.ID {
				return fmt.Errorf("outgoing edge of %s claims source %s", src.ID, e.Source)
			}
			if e.IsResolved() {
				if _, ok := st.byID[e.Target]; !ok {
					return fmt.Errorf("edge %s -> %s targets unknown note", e.Source, e.Target)
				}
				resolved[edgeKey(e)]++
			} else {
				if e.Unresolved == "" {
					return fmt.Errorf("edge from %s has neither target nor placeholder name", e.Source)
				}
				unresolvedCount[edgeKey(e)]++
			}
		}
	}

	incomingSeen := map[string]int{}
	for h, edges := range st.incoming {
		target := st.records[h]
		for _, e := range edges {
			if !e.IsResolved() {
				return fmt.Errorf("incoming set of %s holds unresolved edge from %s", target.ID, e.Source)
			}
			if e.Target != target.ID {
				return fmt.Errorf("incoming set of %s holds edge targeting %s", target.ID, e.Target)
			}
			if _, ok := st.byID[e.Source]; !ok {
				return fmt.Errorf("incoming edge of %s from unknown note %s", target.ID, e.Source)
			}
			incomingSeen[edgeKey(e)]++
		}
	}
	if err := equalCounts(resolved, incomingSeen, "outgoing", "incoming"); err != nil {
		return err
	}

	bucketSeen := map[string]int{}
	for name, edges := range st.placeholders {
		if len(edges) == 0 {
			return fmt.Errorf("empty placeholder bucket %q", name)
		}
		for _, e := range edges {
			if e.IsResolved() {
				return fmt.Errorf("placeholder bucket %q holds resolved edge to %s", name, e.Target)
			}
			if e.Unresolved != name {
				return fmt.Errorf("edge named %q filed under bucket %q", e.Unresolved, name)
			}
			bucketSeen[edgeKey(e)]++
		}
	}
	return equalCounts(unresolvedCount, bucketSeen, "outgoing", "placeholders")
}

func edgeKey(e models.ResolvedLink) string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d\x00%s", e.Source, e.Target, e.Unresolved, e.Line, e.RawText)
}

func equalCounts(want, got map[string]int, wantName, gotName string) error {
	for k, n := range want {
		if got[k] != n {
			return fmt.Errorf("edge %q: %d copies in %s, %d in %s", k, n, wantName, got[k], gotName)
		}
	}
	for k, n := range got {
		if want[k] != n {
			return fmt.Errorf("edge %q: %d copies in %s, %d in %s", k, want[k], wantName, n, gotName)
		}
	}
	return nil
}
