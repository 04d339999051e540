// Package testutil provides shared test helpers for setting up document stores and seed directories.
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/daewon/plantops/internal/docstore"
	"github.com/daewon/plantops/internal/storage"
)

// TestStore creates a temporary document store that is automatically cleaned up.
func TestStore(t *testing.T) *docstore.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "plantops-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	s, err := docstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSeedDir creates a temporary seed directory with a storage.Provider.
func TestSeedDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	seedDir := t.TempDir()
	seeds, err := storage.NewFS(seedDir)
	if err != nil {
		t.Fatal(err)
	}
	return seedDir, seeds
}

// PutMasters writes a vocabulary document ({"list": entries}) into the store.
func PutMasters(t *testing.T, s docstore.DocumentStore, vocabulary string, entries ...map[string]any) {
	t.Helper()
	if entries == nil {
		entries = []map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"list": entries})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set(context.Background(), "masters", vocabulary, body); err != nil {
		t.Fatalf("put masters/%s: %v", vocabulary, err)
	}
}

// SeedMasters stores a small, fixed set of vocabularies:
// types A,B; lines L1,L2; processes P1 (tag T1) and P2 (tag T2).
func SeedMasters(t *testing.T, s docstore.DocumentStore) {
	t.Helper()
	PutMasters(t, s, "types",
		map[string]any{"code": "A", "order": 1},
		map[string]any{"code": "B", "order": 2},
	)
	PutMasters(t, s, "lines",
		map[string]any{"code": "L1"},
		map[string]any{"code": "L2"},
	)
	PutMasters(t, s, "processes",
		map[string]any{"code": "P1", "tag": "T1", "order": 1},
		map[string]any{"code": "P2", "tag": "T2", "order": 2},
	)
}

// Eventually polls fn until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
