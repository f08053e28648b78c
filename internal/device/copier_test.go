package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gantry/internal/catalog"
	"gantry/internal/fileutil"
	"gantry/internal/testsupport"
)

func testVolume(t *testing.T) Volume {
	t.Helper()
	return Volume{MountPath: t.TempDir(), Removable: true}
}

func TestCopyRoundtrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	source := filepath.Join(cfg.Paths.DownloadDir, "Mario Kart [RMCE01].iso")
	testsupport.WriteFile(t, source, 4096)
	sum, err := fileutil.Checksum(source)
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "RMCE01", Title: "Mario Kart", Path: source, SizeBytes: 4096, Checksum: sum,
	})

	job, err := mgr.Copy(context.Background(), "RMCE01", vol, CopyOptions{})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if job.State != JobDone {
		t.Fatalf("expected done, got %s (%s)", job.State, job.Err)
	}

	want := filepath.Join(vol.MountPath, cfg.Device.GamesDir, "Mario Kart [RMCE01]", "Mario Kart [RMCE01].iso")
	if job.DestPath != want {
		t.Fatalf("dest = %s, want %s", job.DestPath, want)
	}
	copied, err := fileutil.Checksum(job.DestPath)
	if err != nil {
		t.Fatalf("Checksum copy: %v", err)
	}
	if copied != sum {
		t.Fatal("copied contents differ from source")
	}
	if job.Bytes != 4096 {
		t.Fatalf("expected 4096 bytes reported, got %d", job.Bytes)
	}
}

func TestCopyVerificationMismatchRemovesDestination(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	source := filepath.Join(cfg.Paths.DownloadDir, "Broken [BRKN01].iso")
	testsupport.WriteFile(t, source, 1024)
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "BRKN01", Title: "Broken", Path: source, SizeBytes: 1024,
		Checksum: "not-the-real-checksum",
	})

	job, err := mgr.Copy(context.Background(), "BRKN01", vol, CopyOptions{})
	if !errors.Is(err, ErrVerificationMismatch) {
		t.Fatalf("expected ErrVerificationMismatch, got %v", err)
	}
	if job.State != JobFailed {
		t.Fatalf("expected failed, got %s", job.State)
	}
	if fileutil.Exists(job.DestPath) {
		t.Fatal("expected mismatched destination removed")
	}
}

func TestCopyInsufficientSpaceLeavesNoPartial(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	mgr.freeSpace = func(string) (uint64, error) { return 100, nil }
	vol := testVolume(t)

	source := filepath.Join(cfg.Paths.DownloadDir, "Big [BIGG01].iso")
	testsupport.WriteFile(t, source, 2048)
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "BIGG01", Title: "Big", Path: source, SizeBytes: 2048,
	})

	job, err := mgr.Copy(context.Background(), "BIGG01", vol, CopyOptions{})
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job for rejected copy, got %+v", job)
	}
	if got := len(mgr.Jobs()); got != 0 {
		t.Fatalf("expected no tracked jobs, got %d", got)
	}

	var partials []string
	_ = filepath.WalkDir(vol.MountPath, func(path string, entry os.DirEntry, err error) error {
		if err == nil && !entry.IsDir() && strings.HasPrefix(entry.Name(), partialPrefix) {
			partials = append(partials, path)
		}
		return nil
	})
	if len(partials) != 0 {
		t.Fatalf("expected no partial files, found %v", partials)
	}
}

func TestCopyDuplicateOnTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	source := filepath.Join(cfg.Paths.DownloadDir, "Twice [TWCE01].iso")
	testsupport.WriteFile(t, source, 512)
	sum, _ := fileutil.Checksum(source)
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "TWCE01", Title: "Twice", Path: source, SizeBytes: 512, Checksum: sum,
	})

	if _, err := mgr.Copy(context.Background(), "TWCE01", vol, CopyOptions{}); err != nil {
		t.Fatalf("first Copy: %v", err)
	}
	dup, err := mgr.Copy(context.Background(), "TWCE01", vol, CopyOptions{})
	if !errors.Is(err, ErrDuplicateOnTarget) {
		t.Fatalf("expected ErrDuplicateOnTarget, got %v", err)
	}
	if dup != nil {
		t.Fatalf("expected no job for duplicate rejection, got %+v", dup)
	}
	if got := len(mgr.Jobs()); got != 1 {
		t.Fatalf("expected only the completed job tracked, got %d", got)
	}

	job, err := mgr.Copy(context.Background(), "TWCE01", vol, CopyOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite Copy: %v", err)
	}
	if job.State != JobDone {
		t.Fatalf("expected done, got %s", job.State)
	}
}

func TestCopySourceMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	if _, err := mgr.Copy(context.Background(), "NOPE01", vol, CopyOptions{}); !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("unknown artifact: expected ErrSourceMissing, got %v", err)
	}

	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "GONE01", Path: filepath.Join(cfg.Paths.DownloadDir, "gone.iso"), SizeBytes: 1,
	})
	if _, err := mgr.Copy(context.Background(), "GONE01", vol, CopyOptions{}); !errors.Is(err, ErrSourceMissing) {
		t.Fatalf("vanished file: expected ErrSourceMissing, got %v", err)
	}
}

func TestRemovePrunesEmptyDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	source := filepath.Join(cfg.Paths.DownloadDir, "Gone [GONE02].iso")
	testsupport.WriteFile(t, source, 256)
	sum, _ := fileutil.Checksum(source)
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "GONE02", Title: "Gone", Path: source, SizeBytes: 256, Checksum: sum,
	})
	if _, err := mgr.Copy(context.Background(), "GONE02", vol, CopyOptions{}); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	if err := mgr.Remove(context.Background(), "GONE02", vol); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	gameDir := filepath.Join(vol.MountPath, cfg.Device.GamesDir, "Gone [GONE02]")
	if fileutil.Exists(gameDir) {
		t.Fatal("expected game directory removed")
	}
	// The games root itself stays.
	if !fileutil.Exists(filepath.Join(vol.MountPath, cfg.Device.GamesDir)) {
		t.Fatal("expected games root retained")
	}

	if err := mgr.Remove(context.Background(), "GONE02", vol); err == nil {
		t.Fatal("expected error removing absent artifact")
	}
}

func TestCollectOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	gameDir := filepath.Join(vol.MountPath, cfg.Device.GamesDir, "Stale [STAL02]")
	orphan := filepath.Join(gameDir, partialPrefix+"abcd")
	keeper := filepath.Join(gameDir, "Stale [STAL02].iso")
	testsupport.WriteFile(t, orphan, 64)
	testsupport.WriteFile(t, keeper, 64)

	removed := mgr.CollectOrphans(vol)
	if len(removed) != 1 || removed[0] != orphan {
		t.Fatalf("unexpected removals: %v", removed)
	}
	if fileutil.Exists(orphan) {
		t.Fatal("expected orphan removed")
	}
	if !fileutil.Exists(keeper) {
		t.Fatal("expected image retained")
	}
}

func TestCopySweepsStalePartials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil, nil)
	vol := testVolume(t)

	orphan := filepath.Join(vol.MountPath, cfg.Device.GamesDir, "Old [OLDD01]", partialPrefix+"dead")
	testsupport.WriteFile(t, orphan, 128)

	source := filepath.Join(cfg.Paths.DownloadDir, "Fresh [FRSH01].iso")
	testsupport.WriteFile(t, source, 256)
	sum, _ := fileutil.Checksum(source)
	testsupport.RecordArtifact(t, store, catalog.Artifact{
		ID: "FRSH01", Title: "Fresh", Path: source, SizeBytes: 256, Checksum: sum,
	})

	if _, err := mgr.Copy(context.Background(), "FRSH01", vol, CopyOptions{}); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if fileutil.Exists(orphan) {
		t.Fatal("expected stale partial removed before copying")
	}
}
