package index

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/starford/gebo/internal/models"
)

// assertMatchesRebuild verifies the incremental path against the full
// build oracle: rebuilding from the same corpus must yield the same maps.
func assertMatchesRebuild(t *testing.T, s *Store) {
	t.Helper()
	incremental := s.Snapshot()
	if err := s.Rebuild(context.Background()); err != nil {
		t.Fatalf("oracle rebuild: %v", err)
	}
	oracle := s.Snapshot()

	if !reflect.DeepEqual(incremental.Outgoing, oracle.Outgoing) {
		t.Errorf("outgoing diverged from full build:\n got %+v\nwant %+v", incremental.Outgoing, oracle.Outgoing)
	}
	if !reflect.DeepEqual(incremental.Incoming, oracle.Incoming) {
		t.Errorf("incoming diverged from full build:\n got %+v\nwant %+v", incremental.Incoming, oracle.Incoming)
	}
	if !reflect.DeepEqual(incremental.Placeholders, oracle.Placeholders) {
		t.Errorf("placeholders diverged from full build:\n got %+v\nwant %+v", incremental.Placeholders, oracle.Placeholders)
	}
}

func TestApplyCreate_PromotesPlaceholder(t *testing.T) {
	// Scenario: a references a missing note, which then gets created.
	s, fsp := testStore(t, map[string]string{"a.md": "[[missing]]"})

	groups := s.Placeholders()
	if len(groups) != 1 || groups[0].Target != "missing" {
		t.Fatalf("placeholders = %+v", groups)
	}

	if err := fsp.Write("missing.md", []byte("now exists")); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyCreate("missing.md", []byte("now exists")); err != nil {
		t.Fatalf("ApplyCreate: %v", err)
	}

	if got := s.Placeholders(); len(got) != 0 {
		t.Errorf("placeholders after create = %+v, want none", got)
	}
	if src := backlinkSources(s, "missing"); !reflect.DeepEqual(src, []models.NoteID{"a"}) {
		t.Errorf("Backlinks(missing) = %v, want [a]", src)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyCreate_PromotionRespectsPathHint(t *testing.T) {
	s, fsp := testStore(t, map[string]string{"a.md": "[[x/proj]] and [[proj]]"})

	// Creating y/proj satisfies the bare-basename reference but not the
	// path-hinted one.
	if err := fsp.Write("y/proj.md", []byte("")); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyCreate("y/proj.md", nil); err != nil {
		t.Fatal(err)
	}

	groups := s.Placeholders()
	if len(groups) != 1 || len(groups[0].Refs) != 1 {
		t.Fatalf("placeholders = %+v, want the path-hinted ref only", groups)
	}
	if len(s.Backlinks("y/proj")) != 1 {
		t.Errorf("bare reference not promoted")
	}
	assertMatchesRebuild(t, s)
}

func TestApplyEdit_DiffsOutgoing(t *testing.T) {
	s, fsp := testStore(t, map[string]string{
		"a.md": "[[b]] [[c]]",
		"b.md": "",
		"c.md": "",
		"d.md": "",
	})

	next := "[[c]] [[d]]"
	if err := fsp.Write("a.md", []byte(next)); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyEdit("a.md", []byte(next)); err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}

	if len(s.Backlinks("b")) != 0 {
		t.Error("removed target still has incoming edge")
	}
	if len(s.Backlinks("c")) != 1 {
		t.Error("kept target lost its incoming edge")
	}
	if len(s.Backlinks("d")) != 1 {
		t.Error("added target missing incoming edge")
	}
	assertMatchesRebuild(t, s)
}

func TestApplyEdit_UnknownNoteBecomesCreate(t *testing.T) {
	s, fsp := testStore(t, map[string]string{"a.md": ""})
	if err := fsp.Write("new.md", []byte("[[a]]")); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyEdit("new.md", []byte("[[a]]")); err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if len(s.Backlinks("a")) != 1 {
		t.Error("edit of unknown note did not register it")
	}
	assertMatchesRebuild(t, s)
}

func TestApplyDelete_DemotesInboundEdges(t *testing.T) {
	// Scenario: delete b; a's edge becomes a placeholder and a is isolated.
	s, fsp := testStore(t, map[string]string{
		"a.md": "see [[b]]",
		"b.md": "",
	})

	if err := fsp.Delete("b.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyDelete("b.md"); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}

	groups := s.Placeholders()
	if len(groups) != 1 || groups[0].Target != "b" {
		t.Fatalf("placeholders = %+v, want bucket b", groups)
	}
	orphans := s.Orphans()
	if !reflect.DeepEqual(orphans.Isolated, []models.NoteID{"a"}) {
		t.Errorf("Isolated = %v, want [a]", orphans.Isolated)
	}
	if _, ok := s.Snapshot().Records["b"]; ok {
		t.Error("deleted note still has a record")
	}
	assertMatchesRebuild(t, s)
}

func TestApplyDelete_SelfLink(t *testing.T) {
	s, fsp := testStore(t, map[string]string{"loop.md": "[[loop]]"})
	if err := fsp.Delete("loop.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyDelete("loop.md"); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Records) != 0 || len(snap.Placeholders) != 0 {
		t.Errorf("leftover state after deleting self-linking note: %+v", snap)
	}
}

func TestApplyRename_RewritesReferences(t *testing.T) {
	// Scenario: rename b -> bb; a's text changes and backlinks follow.
	s, fsp := testStore(t, map[string]string{
		"a.md": "see [[b]] and [[b#sec|label]]",
		"b.md": "",
	})

	if err := fsp.Move("b.md", "bb.md"); err != nil {
		t.Fatal(err)
	}
	report, err := s.ApplyRename("b", "bb")
	if err != nil {
		t.Fatalf("ApplyRename: %v", err)
	}
	if !reflect.DeepEqual(report.Rewritten, []models.NoteID{"a"}) || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}

	data, err := fsp.Read("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "see [[bb]] and [[bb#sec|label]]" {
		t.Errorf("rewritten text = %q", data)
	}
	if src := backlinkSources(s, "bb"); !reflect.DeepEqual(src, []models.NoteID{"a", "a"}) {
		t.Errorf("Backlinks(bb) sources = %v", src)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyRename_RoundTripRestoresText(t *testing.T) {
	original := "intro ![[b]] then [[b#part|see this]] end"
	s, fsp := testStore(t, map[string]string{
		"a.md": original,
		"b.md": "",
	})

	if err := fsp.Move("b.md", "c.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyRename("b", "c"); err != nil {
		t.Fatal(err)
	}
	if err := fsp.Move("c.md", "b.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyRename("c", "b"); err != nil {
		t.Fatal(err)
	}

	data, err := fsp.Read("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != original {
		t.Errorf("round trip text = %q, want %q", data, original)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyRename_SelfLink(t *testing.T) {
	// Scenario: b links to itself; after the rename the file's own text
	// points at the new name and the self-backlinks follow.
	s, fsp := testStore(t, map[string]string{"b.md": "see [[b]] and [[b#intro|me]]"})

	if err := fsp.Move("b.md", "bb.md"); err != nil {
		t.Fatal(err)
	}
	report, err := s.ApplyRename("b", "bb")
	if err != nil {
		t.Fatalf("ApplyRename: %v", err)
	}
	if !reflect.DeepEqual(report.Rewritten, []models.NoteID{"bb"}) || len(report.Failed) != 0 {
		t.Fatalf("report = %+v", report)
	}

	data, err := fsp.Read("bb.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "see [[bb]] and [[bb#intro|me]]" {
		t.Errorf("rewritten text = %q", data)
	}
	if groups := s.Placeholders(); len(groups) != 0 {
		t.Errorf("placeholders = %+v, want none", groups)
	}
	if src := backlinkSources(s, "bb"); !reflect.DeepEqual(src, []models.NoteID{"bb", "bb"}) {
		t.Errorf("Backlinks(bb) sources = %v", src)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyEdit_ResolvesWithDiskModTime(t *testing.T) {
	s, fsp := testStore(t, map[string]string{
		"src.md": "",
		"x/n.md": "",
	})

	// y/n is registered last but its file is an hour old; the most-recent
	// rule must rank it below x/n, exactly as a full rebuild would.
	if err := fsp.Write("y/n.md", nil); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(fsp.Root(), "y", "n.md"), old, old); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyCreate("y/n.md", nil); err != nil {
		t.Fatal(err)
	}

	if err := fsp.Write("src.md", []byte("[[n]]")); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyEdit("src.md", []byte("[[n]]")); err != nil {
		t.Fatal(err)
	}

	out := s.OutgoingLinks("src")
	if len(out) != 1 || out[0].Target != "x/n" {
		t.Fatalf("outgoing = %+v, want x/n to win most-recent", out)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyRename_PathHintReference(t *testing.T) {
	s, fsp := testStore(t, map[string]string{
		"a.md":      "[[sub/b]]",
		"sub/b.md":  "",
		"other.md":  "[[b]]",
	})

	if err := fsp.Move("sub/b.md", "moved/b2.md"); err != nil {
		t.Fatal(err)
	}
	report, err := s.ApplyRename("sub/b", "moved/b2")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("failed rewrites: %+v", report.Failed)
	}

	data, _ := fsp.Read("a.md")
	if string(data) != "[[moved/b2]]" {
		t.Errorf("path-hinted rewrite = %q", data)
	}
	data, _ = fsp.Read("other.md")
	if string(data) != "[[b2]]" {
		t.Errorf("basename rewrite = %q", data)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyRename_PartialFailure(t *testing.T) {
	s, fsp := testStore(t, map[string]string{
		"good.md":      "[[b]]",
		"ro/locked.md": "[[b]]",
		"b.md":         "",
	})

	if err := fsp.Move("b.md", "sub/bb.md"); err != nil {
		t.Fatal(err)
	}

	// Atomic writes stage a temp file next to the target, so a read-only
	// directory makes the rewrite of ro/locked.md fail while everything
	// else proceeds.
	roDir := filepath.Join(fsp.Root(), "ro")
	if err := os.Chmod(roDir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(roDir, 0o755) })

	report, err := s.ApplyRename("b", "sub/bb")
	if err != nil {
		t.Fatalf("ApplyRename: %v", err)
	}

	if !reflect.DeepEqual(report.Rewritten, []models.NoteID{"good"}) {
		t.Errorf("Rewritten = %v, want [good]", report.Rewritten)
	}
	if len(report.Failed) != 1 || report.Failed[0].Note != "ro/locked" {
		t.Fatalf("Failed = %+v, want ro/locked", report.Failed)
	}

	// The failed file keeps its old text and degrades to a placeholder.
	data, _ := fsp.Read("ro/locked.md")
	if string(data) != "[[b]]" {
		t.Errorf("failed file text = %q, want unmodified", data)
	}
	groups := s.Placeholders()
	if len(groups) != 1 || groups[0].Target != "b" || groups[0].Refs[0].Source != "ro/locked" {
		t.Errorf("placeholders = %+v, want ro/locked's edge under b", groups)
	}
	if src := backlinkSources(s, "sub/bb"); !reflect.DeepEqual(src, []models.NoteID{"good"}) {
		t.Errorf("Backlinks(sub/bb) = %v, want [good]", src)
	}
	assertMatchesRebuild(t, s)
}

func TestApplyRename_Conflicts(t *testing.T) {
	s, _ := testStore(t, map[string]string{"a.md": "", "b.md": ""})
	if _, err := s.ApplyRename("missing", "x"); err == nil {
		t.Error("renaming unknown note should fail")
	}
	if _, err := s.ApplyRename("a", "b"); err == nil {
		t.Error("renaming onto an existing note should fail")
	}
}
