package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"

	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/transfer"
)

// Extractor unpacks downloaded archives, keeping only the disc images they
// contain. Images land next to the archive; the archive itself is removed
// once everything extracted cleanly.
type Extractor struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewExtractor builds the archive extractor.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "extract"),
	}
}

type archiveEntry struct {
	name string
	open func() (io.ReadCloser, error)
}

// Extract implements transfer.Extractor.
func (e *Extractor) Extract(ctx context.Context, archivePath string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(archivePath))
	var (
		entries []archiveEntry
		closer  io.Closer
		err     error
	)
	switch ext {
	case ".zip":
		entries, closer, err = openZip(archivePath)
	case ".7z":
		entries, closer, err = open7z(archivePath)
	default:
		return nil, transfer.Wrap(transfer.ErrInvalidArchive, "extract",
			fmt.Sprintf("unsupported archive type %s", ext), nil)
	}
	if err != nil {
		return nil, transfer.Wrap(transfer.ErrInvalidArchive, "extract", archivePath, err)
	}
	defer closer.Close()

	destDir := filepath.Dir(archivePath)
	var extracted []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			removePaths(extracted)
			return nil, err
		}
		if !e.cfg.IsImagePath(entry.name) {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(entry.name))
		if err := extractEntry(entry, destPath); err != nil {
			removePaths(extracted)
			return nil, transfer.Wrap(transfer.ErrInvalidArchive, "extract", entry.name, err)
		}
		extracted = append(extracted, destPath)
		e.logger.Info("extracted disc image",
			logging.String("archive", filepath.Base(archivePath)),
			logging.String("path", destPath))
	}

	if len(extracted) == 0 {
		return nil, transfer.Wrap(transfer.ErrInvalidArchive, "extract",
			"archive holds no disc image", nil)
	}

	if err := os.Remove(archivePath); err != nil {
		e.logger.Warn("failed to remove archive after extraction",
			logging.String("archive", archivePath),
			logging.Error(err))
	}
	return extracted, nil
}

func openZip(archivePath string) ([]archiveEntry, io.Closer, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]archiveEntry, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		file := f
		entries = append(entries, archiveEntry{
			name: file.Name,
			open: func() (io.ReadCloser, error) { return file.Open() },
		})
	}
	return entries, reader, nil
}

func open7z(archivePath string) ([]archiveEntry, io.Closer, error) {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]archiveEntry, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		file := f
		entries = append(entries, archiveEntry{
			name: file.Name,
			open: func() (io.ReadCloser, error) { return file.Open() },
		})
	}
	return entries, reader, nil
}

func extractEntry(entry archiveEntry, destPath string) error {
	in, err := entry.open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		_ = os.Remove(destPath)
		return err
	}
	return out.Close()
}

func removePaths(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
