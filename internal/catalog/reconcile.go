package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"gantry/internal/config"
	"gantry/internal/fileutil"
	"gantry/internal/logging"
)

// ReconcileResult summarizes a reconcile pass over the download directory.
type ReconcileResult struct {
	Added   []string
	Removed []string
	Kept    int
}

// ChecksumFunc computes the content checksum of a file.
type ChecksumFunc func(path string) (string, error)

// Reconcile walks the download directory and brings artifact records in line
// with what is actually on disk. Image files with no record get one (with a
// freshly computed checksum), records whose file vanished are removed.
// Reconcile never deletes files.
func (s *Store) Reconcile(ctx context.Context, cfg *config.Config, checksum ChecksumFunc, logger *slog.Logger) (*ReconcileResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if checksum == nil {
		checksum = fileutil.Checksum
	}

	existing, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*Artifact, len(existing))
	for _, artifact := range existing {
		byPath[artifact.Path] = artifact
	}

	result := &ReconcileResult{}

	err = filepath.WalkDir(cfg.Paths.DownloadDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !cfg.IsImagePath(path) {
			return nil
		}
		if _, ok := byPath[path]; ok {
			delete(byPath, path)
			result.Kept++
			return nil
		}

		size, err := fileutil.FileSize(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		sum, err := checksum(path)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", path, err)
		}

		// Existing record pointing at a moved file keeps its identity.
		if match, err := s.LookupByContent(ctx, size, sum); err != nil {
			return err
		} else if match != nil {
			delete(byPath, match.Path)
			match.Path = path
			if err := s.Record(ctx, *match); err != nil {
				return err
			}
			result.Kept++
			logger.Info("artifact relocated",
				logging.String(logging.FieldComponent, "catalog"),
				logging.String("artifact_id", match.ID),
				logging.String("path", path))
			return nil
		}

		artifact := Artifact{
			ID:        deriveID(path),
			Title:     deriveTitle(path),
			Path:      path,
			SizeBytes: size,
			Checksum:  sum,
		}
		if err := s.Record(ctx, artifact); err != nil {
			return err
		}
		result.Added = append(result.Added, artifact.ID)
		logger.Info("artifact adopted",
			logging.String(logging.FieldComponent, "catalog"),
			logging.String("artifact_id", artifact.ID),
			logging.String("path", path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk download dir: %w", err)
	}

	for _, stale := range byPath {
		if fileutil.Exists(stale.Path) {
			// File still exists outside the download dir; leave the record.
			result.Kept++
			continue
		}
		if _, err := s.Delete(ctx, stale.ID); err != nil {
			return nil, err
		}
		result.Removed = append(result.Removed, stale.ID)
		logger.Info("artifact record pruned",
			logging.String(logging.FieldComponent, "catalog"),
			logging.String("artifact_id", stale.ID),
			logging.String("path", stale.Path))
	}

	return result, nil
}

// deriveID extracts a bracketed identifier from a file name, falling back to
// the bare name. "Mario Kart [RMCE01].iso" yields "RMCE01".
func deriveID(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if open := strings.LastIndex(base, "["); open >= 0 {
		if close := strings.Index(base[open:], "]"); close > 1 {
			return base[open+1 : open+close]
		}
	}
	return base
}

// deriveTitle strips the bracketed identifier and extension from a file name.
func deriveTitle(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if open := strings.LastIndex(base, "["); open > 0 {
		base = strings.TrimSpace(base[:open])
	}
	return base
}
