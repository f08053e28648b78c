package device

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gantry/internal/config"
)

// Game is a loader-layout image already present on a volume.
type Game struct {
	ID        string
	Title     string
	Dir       string
	ImagePath string
	SizeBytes int64
}

// Games scans the volume's games directory for "Title [GAMEID]" folders that
// contain a disc image. Folders without a parseable identifier or image are
// skipped.
func (m *Manager) Games(vol Volume) ([]Game, error) {
	return ScanGames(vol, m.cfg)
}

// ScanGames is the Lister-independent volume scan.
func ScanGames(vol Volume, cfg *config.Config) ([]Game, error) {
	root := filepath.Join(vol.MountPath, cfg.Device.GamesDir)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var games []Game
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		title, id, ok := parseGameDir(entry.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		imagePath, size := firstImage(dir, cfg)
		if imagePath == "" {
			continue
		}
		games = append(games, Game{
			ID:        id,
			Title:     title,
			Dir:       dir,
			ImagePath: imagePath,
			SizeBytes: size,
		})
	}

	sort.Slice(games, func(i, j int) bool { return games[i].Title < games[j].Title })
	return games, nil
}

// parseGameDir splits "Title [GAMEID]" into its parts.
func parseGameDir(name string) (title, id string, ok bool) {
	open := strings.LastIndex(name, "[")
	if open < 0 || !strings.HasSuffix(name, "]") {
		return "", "", false
	}
	id = name[open+1 : len(name)-1]
	if id == "" {
		return "", "", false
	}
	title = strings.TrimSpace(name[:open])
	if title == "" {
		title = id
	}
	return title, id, true
}

func firstImage(dir string, cfg *config.Config) (string, int64) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0
	}
	for _, entry := range entries {
		if entry.IsDir() || !cfg.IsImagePath(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return path, 0
		}
		return path, info.Size()
	}
	return "", 0
}
