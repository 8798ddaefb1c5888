package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/gebo/internal/api"
	"github.com/starford/gebo/internal/testutil"
)

func testServer(t *testing.T, files map[string]string) *Server {
	t.Helper()
	_, store := testutil.TestVault(t, files)
	idx := testutil.TestStore(t, store)
	return New(api.NewService(store, idx, nil))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_outgoing_links":
		result, err = srv.getOutgoingLinks(ctx, req)
	case "list_placeholders":
		result, err = srv.listPlaceholders(ctx, req)
	case "list_orphans":
		result, err = srv.listOrphans(ctx, req)
	case "resolve_reference":
		result, err = srv.resolveReference(ctx, req)
	case "rename_note":
		result, err = srv.renameNote(ctx, req)
	case "rebuild_index":
		result, err = srv.rebuildIndex(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestReadNote(t *testing.T) {
	srv := testServer(t, map[string]string{
		"test.md": "# Test\nHello",
	})

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "test.md"})
	if text := resultText(r); text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "missing.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestGetBacklinksTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"target.md": "# Target",
		"source.md": "see [[target]]",
	})

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "target.md"})
	text := resultText(r)
	if !strings.Contains(text, `"source"`) || !strings.Contains(text, "source") {
		t.Errorf("backlinks = %q", text)
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "source.md"})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("empty backlinks = %q", text)
	}
}

func TestGetOutgoingLinksTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"a.md": "see [[b]] and [[ghost]]",
		"b.md": "b",
	})

	r := callTool(t, srv, "get_outgoing_links", map[string]interface{}{"path": "a.md"})
	text := resultText(r)
	if !strings.Contains(text, `"target": "b"`) {
		t.Errorf("missing resolved edge in %q", text)
	}
	if !strings.Contains(text, `"unresolved": "ghost"`) {
		t.Errorf("missing unresolved edge in %q", text)
	}
}

func TestListPlaceholdersTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"a.md": "see [[Ghost]] and [[ghost]]",
	})

	r := callTool(t, srv, "list_placeholders", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, `"target": "ghost"`) {
		t.Errorf("placeholders = %q", text)
	}
}

func TestListOrphansTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"island.md": "alone",
		"a.md":      "see [[b]]",
		"b.md":      "b",
	})

	r := callTool(t, srv, "list_orphans", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "island") {
		t.Errorf("orphans = %q", text)
	}
}

func TestResolveReferenceTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"topics/linking.md": "# Linking",
	})

	r := callTool(t, srv, "resolve_reference", map[string]interface{}{
		"text": "linking#intro|see here",
	})
	text := resultText(r)
	if !strings.Contains(text, "topics/linking.md") {
		t.Errorf("resolve = %q", text)
	}

	r = callTool(t, srv, "resolve_reference", map[string]interface{}{"text": "nope"})
	if !r.IsError {
		t.Error("expected error for unresolved reference")
	}
}

func TestRenameNoteTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"old.md": "# Old",
		"ref.md": "see [[old]]",
	})

	r := callTool(t, srv, "rename_note", map[string]interface{}{
		"path":     "old.md",
		"new_path": "new.md",
	})
	text := resultText(r)
	if !strings.Contains(text, `"new_id": "new"`) {
		t.Errorf("rename report = %q", text)
	}
	if !strings.Contains(text, `"ref"`) {
		t.Errorf("rename report missing rewritten note: %q", text)
	}

	// The referencing note now reads the new name.
	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "ref.md"})
	if text := resultText(r); text != "see [[new]]" {
		t.Errorf("rewritten content = %q", text)
	}
}

func TestListNotesTool(t *testing.T) {
	srv := testServer(t, map[string]string{
		"a.md": "see [[b]]",
		"b.md": "b",
	})

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "a.md (out: 1, in: 0)") {
		t.Errorf("list = %q", text)
	}
	if !strings.Contains(text, "b.md (out: 0, in: 1)") {
		t.Errorf("list = %q", text)
	}
}

func TestRebuildIndexTool(t *testing.T) {
	srv := testServer(t, map[string]string{"a.md": "a"})

	r := callTool(t, srv, "rebuild_index", map[string]interface{}{})
	if text := resultText(r); text != "index rebuilt" {
		t.Errorf("rebuild = %q", text)
	}
}
