package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"gantry/internal/catalog"
	"gantry/internal/fileutil"
	"gantry/internal/testsupport"
)

func TestReconcileAdoptsUnknownImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.DownloadDir, "Mario Kart [RMCE01].iso")
	testsupport.WriteFile(t, path, 2048)
	testsupport.WriteFileString(t, filepath.Join(cfg.Paths.DownloadDir, "notes.txt"), "ignored")

	result, err := store.Reconcile(ctx, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Added) != 1 || result.Added[0] != "RMCE01" {
		t.Fatalf("unexpected added set: %v", result.Added)
	}

	got, err := store.Lookup(ctx, "RMCE01")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil {
		t.Fatal("expected adopted artifact")
	}
	if got.Title != "Mario Kart" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.SizeBytes != 2048 {
		t.Fatalf("unexpected size %d", got.SizeBytes)
	}
	if got.Checksum == "" {
		t.Fatal("expected checksum to be computed")
	}
}

func TestReconcilePrunesStaleRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	gone := filepath.Join(cfg.Paths.DownloadDir, "gone.iso")
	testsupport.RecordArtifact(t, store, catalog.Artifact{ID: "GONE01", Path: gone, SizeBytes: 7})

	result, err := store.Reconcile(ctx, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "GONE01" {
		t.Fatalf("unexpected removed set: %v", result.Removed)
	}

	got, err := store.Lookup(ctx, "GONE01")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != nil {
		t.Fatalf("expected record pruned, got %+v", got)
	}
}

func TestReconcileRelocatesMovedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	newPath := filepath.Join(cfg.Paths.DownloadDir, "sub", "Zelda [RZDE01].iso")
	testsupport.WriteFile(t, newPath, 4096)
	sum, err := fileutil.Checksum(newPath)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}

	oldPath := filepath.Join(cfg.Paths.DownloadDir, "Zelda [RZDE01].iso")
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID:        "RZDE01",
		Title:     "Zelda",
		Path:      oldPath,
		SizeBytes: 4096,
		Checksum:  sum,
	})

	result, err := store.Reconcile(ctx, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result.Added) != 0 || len(result.Removed) != 0 {
		t.Fatalf("expected relocation only, got added=%v removed=%v", result.Added, result.Removed)
	}

	got, err := store.Lookup(ctx, "RZDE01")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got == nil || got.Path != newPath {
		t.Fatalf("expected path updated to %s, got %+v", newPath, got)
	}
}

func TestReconcileKeepsMatchedRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	path := filepath.Join(cfg.Paths.DownloadDir, "Metroid [RM3E01].wbfs")
	testsupport.WriteFile(t, path, 1024)
	testsupport.RecordArtifact(t, store, catalog.Artifact{ID: "RM3E01", Path: path, SizeBytes: 1024})

	result, err := store.Reconcile(ctx, cfg, nil, nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Kept != 1 || len(result.Added) != 0 || len(result.Removed) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
