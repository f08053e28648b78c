package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gantry/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Artifact is a durable record of an acquired disc image.
type Artifact struct {
	ID         string
	Title      string
	Path       string
	SizeBytes  int64
	Checksum   string
	AcquiredAt time.Time
}

// Store manages artifact persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the artifact database under the state
// directory and verifies the schema version.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "artifacts.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

const artifactColumns = "id, title, path, size_bytes, checksum, acquired_at"

// Lookup fetches an artifact record by identifier. A missing record returns
// (nil, nil).
func (s *Store) Lookup(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup artifact: %w", err)
	}
	return artifact, nil
}

// LookupByContent finds an artifact matching size and checksum. Used as the
// dedup fallback for files acquired outside the queue; an empty checksum
// never matches.
func (s *Store) LookupByContent(ctx context.Context, sizeBytes int64, checksum string) (*Artifact, error) {
	if strings.TrimSpace(checksum) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE size_bytes = ? AND checksum = ? ORDER BY id LIMIT 1`,
		sizeBytes, checksum,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by content: %w", err)
	}
	return artifact, nil
}

// Record upserts an artifact keyed by its identifier. Recording the same
// artifact twice is idempotent.
func (s *Store) Record(ctx context.Context, artifact Artifact) error {
	if strings.TrimSpace(artifact.ID) == "" {
		return errors.New("artifact id is required")
	}
	if strings.TrimSpace(artifact.Path) == "" {
		return errors.New("artifact path is required")
	}
	acquired := artifact.AcquiredAt
	if acquired.IsZero() {
		acquired = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (id, title, path, size_bytes, checksum, acquired_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             title = excluded.title, path = excluded.path,
             size_bytes = excluded.size_bytes, checksum = excluded.checksum`,
		artifact.ID,
		nullableString(artifact.Title),
		artifact.Path,
		artifact.SizeBytes,
		nullableString(artifact.Checksum),
		acquired.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

// Delete removes an artifact record by identifier.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete artifact: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns all artifact records ordered by acquisition time.
func (s *Store) List(ctx context.Context) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY acquired_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		id          string
		title       sql.NullString
		path        string
		sizeBytes   int64
		checksum    sql.NullString
		acquiredRaw string
	)
	if err := scanner.Scan(&id, &title, &path, &sizeBytes, &checksum, &acquiredRaw); err != nil {
		return nil, err
	}

	artifact := &Artifact{
		ID:        id,
		Title:     title.String,
		Path:      path,
		SizeBytes: sizeBytes,
		Checksum:  checksum.String,
	}
	if acquired, err := time.Parse(time.RFC3339Nano, acquiredRaw); err == nil {
		artifact.AcquiredAt = acquired
	}
	return artifact, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
