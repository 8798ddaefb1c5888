package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/gebo/internal/index"
	"github.com/starford/gebo/internal/resolver"
	"github.com/starford/gebo/internal/storage"
)

type recordedRename struct {
	from, to          string
	rewritten, failed int
}

type fakeSink struct {
	renames []recordedRename
}

func (f *fakeSink) PublishRenameEvent(from, to string, rewritten, failed int) {
	f.renames = append(f.renames, recordedRename{from, to, rewritten, failed})
}

// testEnv sets up a temp vault, index store, service, and router for testing.
// authToken="" means disabled mode; non-empty means token mode.
func testEnv(t *testing.T, authToken string) (*Service, http.Handler) {
	t.Helper()
	svc, router, _ := testEnvWithSink(t, authToken)
	return svc, router
}

func testEnvWithSink(t *testing.T, authToken string) (*Service, http.Handler, *fakeSink) {
	t.Helper()

	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir, ".md", nil)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idx := index.NewStore(store, resolver.New(resolver.DefaultPolicy()), nil, logger)
	if err := idx.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	sink := &fakeSink{}
	svc := NewService(store, idx, sink)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router, sink
}

func createNote(t *testing.T, router http.Handler, path, content string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"path": path, "content": content})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s status = %d, body = %s", path, w.Code, w.Body.String())
	}
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "hello.md", "# Hello\nSee [[world]].")

	req := httptest.NewRequest(http.MethodGet, "/notes/hello.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "hello.md" {
		t.Errorf("path = %q", note.Path)
	}
	if len(note.Outgoing) != 1 {
		t.Fatalf("outgoing = %d, want 1", len(note.Outgoing))
	}
	if note.Outgoing[0].Unresolved != "world" {
		t.Errorf("outgoing target = %+v, want unresolved world", note.Outgoing[0])
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "dup.md", "a")

	body, _ := json.Marshal(map[string]string{"path": "dup.md", "content": "a"})
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "lock.md", "v1")

	// Read back to get the checksum.
	req := httptest.NewRequest(http.MethodGet, "/notes/lock.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)

	// Update with the correct checksum.
	body, _ := json.Marshal(map[string]string{"content": "v2"})
	req = httptest.NewRequest(http.MethodPut, "/notes/lock.md", bytes.NewReader(body))
	req.Header.Set("If-Match", note.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}

	// Update again with the stale checksum.
	body, _ = json.Marshal(map[string]string{"content": "v3"})
	req = httptest.NewRequest(http.MethodPut, "/notes/lock.md", bytes.NewReader(body))
	req.Header.Set("If-Match", note.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "target.md", "# Target")
	createNote(t, router, "source.md", "points at [[target]]")

	req := httptest.NewRequest(http.MethodGet, "/backlinks/target.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks status = %d", w.Code)
	}
	var resp LinksResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Links) != 1 {
		t.Fatalf("backlinks = %d, want 1", len(resp.Links))
	}
	if resp.Links[0].Source != "source" {
		t.Errorf("backlink source = %q, want source", resp.Links[0].Source)
	}

	req = httptest.NewRequest(http.MethodGet, "/backlinks/missing.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note backlinks = %d, want 404", w.Code)
	}
}

func TestDeleteDemotesBacklinks(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "gone.md", "# Gone")
	createNote(t, router, "ref.md", "see [[gone]]")

	req := httptest.NewRequest(http.MethodDelete, "/notes/gone.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/placeholders", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp PlaceholdersResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Placeholders) != 1 || resp.Placeholders[0].Target != "gone" {
		t.Errorf("placeholders = %+v, want one group for gone", resp.Placeholders)
	}
}

func TestRenameRewritesAndPublishes(t *testing.T) {
	_, router, sink := testEnvWithSink(t, "")

	createNote(t, router, "old.md", "# Old")
	createNote(t, router, "ref.md", "see [[old]]")

	body, _ := json.Marshal(map[string]string{"path": "old.md", "new_path": "new.md"})
	req := httptest.NewRequest(http.MethodPost, "/rename", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("rename status = %d, body = %s", w.Code, w.Body.String())
	}
	var report index.RenameReport
	_ = json.Unmarshal(w.Body.Bytes(), &report)
	if len(report.Rewritten) != 1 {
		t.Errorf("rewritten = %v, want 1 note", report.Rewritten)
	}

	// Referencing note text was rewritten on disk.
	req = httptest.NewRequest(http.MethodGet, "/notes/ref.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Content != "see [[new]]" {
		t.Errorf("content = %q, want rewritten link", note.Content)
	}

	if len(sink.renames) != 1 {
		t.Fatalf("rename events = %d, want 1", len(sink.renames))
	}
	ev := sink.renames[0]
	if ev.from != "old.md" || ev.to != "new.md" || ev.rewritten != 1 || ev.failed != 0 {
		t.Errorf("rename event = %+v", ev)
	}
}

func TestRenameTargetExists(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "a.md", "a")
	createNote(t, router, "b.md", "b")

	body, _ := json.Marshal(map[string]string{"path": "a.md", "new_path": "b.md"})
	req := httptest.NewRequest(http.MethodPost, "/rename", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("rename onto existing = %d, want 409", w.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "topics/linking.md", "# Linking")
	createNote(t, router, "from.md", "x")

	req := httptest.NewRequest(http.MethodGet, "/resolve?text=linking%23intro&from=from.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body = %s", w.Code, w.Body.String())
	}
	var res ResolveResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Path != "topics/linking.md" {
		t.Errorf("resolved path = %q", res.Path)
	}

	req = httptest.NewRequest(http.MethodGet, "/resolve?text=nonexistent", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unresolved status = %d, want 404", w.Code)
	}
}

func TestListNotesPagination(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "a.md", "a")
	createNote(t, router, "b.md", "b")
	createNote(t, router, "c.md", "c")

	req := httptest.NewRequest(http.MethodGet, "/notes?limit=2&offset=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
	if len(resp.Notes) != 2 || resp.Notes[0].Path != "b.md" {
		t.Errorf("page = %+v, want [b.md c.md]", resp.Notes)
	}
}

func TestGraphEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "a.md", "see [[b]] and [[ghost]]")
	createNote(t, router, "b.md", "b")

	req := httptest.NewRequest(http.MethodGet, "/graph", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp GraphResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Nodes) != 3 {
		t.Fatalf("nodes = %+v, want 2 notes + 1 placeholder", resp.Nodes)
	}
	var placeholderNodes int
	for _, n := range resp.Nodes {
		if n.Placeholder {
			placeholderNodes++
		}
	}
	if placeholderNodes != 1 {
		t.Errorf("placeholder nodes = %d, want 1", placeholderNodes)
	}
	if len(resp.Links) != 2 {
		t.Errorf("links = %+v, want 2", resp.Links)
	}
}

func TestOrphansEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "island.md", "no links here")
	createNote(t, router, "hub.md", "see [[leaf]]")
	createNote(t, router, "leaf.md", "leaf")

	req := httptest.NewRequest(http.MethodGet, "/orphans", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var report index.OrphanReport
	_ = json.Unmarshal(w.Body.Bytes(), &report)
	if len(report.Isolated) != 1 || report.Isolated[0] != "island" {
		t.Errorf("isolated = %v, want [island]", report.Isolated)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("good token = %d, want 200", w.Code)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	createNote(t, router, "a.md", "see [[b]]")

	req := httptest.NewRequest(http.MethodPost, "/rebuild", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("rebuild status = %d", w.Code)
	}

	// Index still answers after the rebuild.
	req = httptest.NewRequest(http.MethodGet, "/links/a.md", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("links after rebuild = %d", w.Code)
	}
}
