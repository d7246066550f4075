// Package testutil provides shared test helpers for setting up stores and databases.
package testutil

import (
	"os"
	"testing"

	"github.com/caldermaw/graft/internal/models"
	"github.com/caldermaw/graft/internal/storage"
	"github.com/caldermaw/graft/internal/treestore"
)

// TestDB creates a temporary SQLite tree store that is automatically cleaned up.
// The license catalog is pre-seeded.
func TestDB(t *testing.T) *treestore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "graft-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := treestore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SeedLicenses(models.DefaultLicenses); err != nil {
		t.Fatal(err)
	}
	return store
}

// TestStore creates a temporary payload directory with a storage.Provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
