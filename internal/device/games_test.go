package device

import (
	"path/filepath"
	"testing"

	"gantry/internal/testsupport"
)

func TestParseGameDir(t *testing.T) {
	cases := []struct {
		name  string
		title string
		id    string
		ok    bool
	}{
		{"Mario Kart [RMCE01]", "Mario Kart", "RMCE01", true},
		{"[RMCE01]", "RMCE01", "RMCE01", true},
		{"No Brackets", "", "", false},
		{"Unclosed [RMCE01", "", "", false},
		{"Empty []", "", "", false},
		{"Nested [A] Thing [RMGE01]", "Nested [A] Thing", "RMGE01", true},
	}
	for _, tc := range cases {
		title, id, ok := parseGameDir(tc.name)
		if ok != tc.ok || title != tc.title || id != tc.id {
			t.Errorf("parseGameDir(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.name, title, id, ok, tc.title, tc.id, tc.ok)
		}
	}
}

func TestScanGames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vol := testVolume(t)
	root := filepath.Join(vol.MountPath, cfg.Device.GamesDir)

	testsupport.WriteFile(t, filepath.Join(root, "Zelda [RZDE01]", "Zelda [RZDE01].wbfs"), 128)
	testsupport.WriteFile(t, filepath.Join(root, "Mario [SMNE01]", "Mario [SMNE01].iso"), 256)
	// No image inside: skipped.
	testsupport.WriteFile(t, filepath.Join(root, "Empty [EMPT01]", "readme.txt"), 8)
	// Not a game directory: skipped.
	testsupport.WriteFile(t, filepath.Join(root, "loose-file.iso"), 8)

	games, err := ScanGames(vol, cfg)
	if err != nil {
		t.Fatalf("ScanGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("expected 2 games, got %d: %+v", len(games), games)
	}
	if games[0].Title != "Mario" || games[0].ID != "SMNE01" || games[0].SizeBytes != 256 {
		t.Fatalf("unexpected first game: %+v", games[0])
	}
	if games[1].Title != "Zelda" || games[1].ID != "RZDE01" {
		t.Fatalf("unexpected second game: %+v", games[1])
	}
}

func TestScanGamesMissingRootIsEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	vol := testVolume(t)

	games, err := ScanGames(vol, cfg)
	if err != nil {
		t.Fatalf("ScanGames: %v", err)
	}
	if len(games) != 0 {
		t.Fatalf("expected no games, got %+v", games)
	}
}
