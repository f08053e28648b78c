package testsupport

import (
	"context"
	"testing"

	"gantry/internal/catalog"
	"gantry/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordArtifact stores an artifact record for tests using the provided store.
func RecordArtifact(t testing.TB, store *catalog.Store, artifact catalog.Artifact) {
	t.Helper()

	if err := store.Record(context.Background(), artifact); err != nil {
		t.Fatalf("store.Record: %v", err)
	}
}
