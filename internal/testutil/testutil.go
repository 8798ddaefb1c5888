// Package testutil provides shared test helpers for setting up vaults and
// index stores.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/gebo/internal/index"
	"github.com/starford/gebo/internal/resolver"
	"github.com/starford/gebo/internal/storage"
)

// TestVault creates a temporary vault directory seeded with the given
// files and returns it with its storage provider.
func TestVault(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir, ".md", nil)
	if err != nil {
		t.Fatal(err)
	}
	for path, content := range files {
		if err := store.Write(path, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return vaultDir, store
}

// TestStore builds an index store over the provider with the default
// tie-break policy, performs a full build, and registers cleanup.
func TestStore(t *testing.T, store storage.Provider) *index.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	idx := index.NewStore(store, resolver.New(resolver.DefaultPolicy()), nil, logger)
	if err := idx.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}
