package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gantry/internal/catalog"
	"gantry/internal/config"
	"gantry/internal/fileutil"
)

func seedArtifact(t *testing.T, cfgPath, id, title, contents string) string {
	t.Helper()
	cfg, _, _, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	path := filepath.Join(cfg.Paths.DownloadDir, title+" ["+id+"].iso")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	sum, err := fileutil.Checksum(path)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}

	store := openStore(t, cfgPath)
	defer store.Close()
	if err := store.Record(context.Background(), catalog.Artifact{
		ID: id, Title: title, Path: path, SizeBytes: int64(len(contents)), Checksum: sum,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	return path
}

func TestCopyCommandPlacesGameOnVolume(t *testing.T) {
	cfgPath := writeTestConfig(t)
	seedArtifact(t, cfgPath, "COPY01", "Copied Game", "image payload for the volume")
	mount := t.TempDir()

	out, err := runCommand(t, "--config", cfgPath, "copy", "COPY01", mount)
	if err != nil {
		t.Fatalf("copy: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Copied COPY01") {
		t.Fatalf("unexpected output: %q", out)
	}

	dest := filepath.Join(mount, "wbfs", "Copied Game [COPY01]", "Copied Game [COPY01].iso")
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "image payload for the volume" {
		t.Fatal("copied contents differ")
	}
}

func TestCopyCommandRejectsDuplicate(t *testing.T) {
	cfgPath := writeTestConfig(t)
	seedArtifact(t, cfgPath, "COPY02", "Twice", "payload")
	mount := t.TempDir()

	if _, err := runCommand(t, "--config", cfgPath, "copy", "COPY02", mount); err != nil {
		t.Fatalf("first copy: %v", err)
	}
	if _, err := runCommand(t, "--config", cfgPath, "copy", "COPY02", mount); err == nil {
		t.Fatal("expected duplicate rejection")
	}
	if _, err := runCommand(t, "--config", cfgPath, "copy", "COPY02", mount, "--overwrite"); err != nil {
		t.Fatalf("overwrite copy: %v", err)
	}
}

func TestVolumeGamesListsCopiedImages(t *testing.T) {
	cfgPath := writeTestConfig(t)
	seedArtifact(t, cfgPath, "GAME02", "Shelved", "payload on shelf")
	mount := t.TempDir()

	if _, err := runCommand(t, "--config", cfgPath, "copy", "GAME02", mount); err != nil {
		t.Fatalf("copy: %v", err)
	}

	out, err := runCommand(t, "--config", cfgPath, "volumes", "games", mount)
	if err != nil {
		t.Fatalf("volumes games: %v", err)
	}
	if !strings.Contains(out, "GAME02") || !strings.Contains(out, "Shelved") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRemoveCommandDeletesGameDir(t *testing.T) {
	cfgPath := writeTestConfig(t)
	seedArtifact(t, cfgPath, "GONE03", "Leaving", "payload leaving")
	mount := t.TempDir()

	if _, err := runCommand(t, "--config", cfgPath, "copy", "GONE03", mount); err != nil {
		t.Fatalf("copy: %v", err)
	}
	out, err := runCommand(t, "--config", cfgPath, "remove", "GONE03", mount)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "Removed GONE03") {
		t.Fatalf("unexpected output: %q", out)
	}

	gameDir := filepath.Join(mount, "wbfs", "Leaving [GONE03]")
	if _, err := os.Stat(gameDir); !os.IsNotExist(err) {
		t.Fatalf("expected game dir removed, stat err %v", err)
	}
}
