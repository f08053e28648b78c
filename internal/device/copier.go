package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"gantry/internal/catalog"
	"gantry/internal/config"
	"gantry/internal/fileutil"
	"gantry/internal/logging"
	"gantry/internal/progress"
	"gantry/internal/textutil"
)

// partialPrefix marks in-flight copies so interrupted runs can be cleaned up.
const partialPrefix = ".gantry-partial-"

// spaceMargin is extra free space required beyond the artifact size, covering
// filesystem metadata.
const spaceMargin = 16 << 20

var (
	ErrSourceMissing        = errors.New("source file missing")
	ErrInsufficientSpace    = errors.New("insufficient space on volume")
	ErrDuplicateOnTarget    = errors.New("artifact already on volume")
	ErrVerificationMismatch = errors.New("copy verification mismatch")
)

// JobState identifies where a copy job sits in its lifecycle.
type JobState string

const (
	JobPending   JobState = "pending"
	JobCopying   JobState = "copying"
	JobVerifying JobState = "verifying"
	JobDone      JobState = "done"
	JobFailed    JobState = "failed"
)

// Job is a point-in-time snapshot of one copy onto a volume.
type Job struct {
	ID         string
	ArtifactID string
	SourcePath string
	DestPath   string
	Volume     string
	State      JobState
	Bytes      int64
	Total      int64
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// CopyOptions adjust a single copy.
type CopyOptions struct {
	// Overwrite replaces an artifact already present on the volume.
	Overwrite bool
}

type freeSpaceFunc func(mountPath string) (uint64, error)

// Manager performs verified copies of catalog artifacts onto volumes.
// Copies to the same volume are serialized; different volumes proceed
// concurrently.
type Manager struct {
	cfg       *config.Config
	store     *catalog.Store
	hub       *progress.Hub
	logger    *slog.Logger
	freeSpace freeSpaceFunc

	mu       sync.Mutex
	volLocks map[string]*sync.Mutex
	jobs     map[string]*Job
}

// NewManager builds a copy manager.
func NewManager(cfg *config.Config, store *catalog.Store, hub *progress.Hub, logger *slog.Logger) *Manager {
	if hub == nil {
		hub = progress.NewHub(0)
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		hub:       hub,
		logger:    logging.NewComponentLogger(logger, "device"),
		freeSpace: statfsFree,
		volLocks:  make(map[string]*sync.Mutex),
		jobs:      make(map[string]*Job),
	}
}

func statfsFree(mountPath string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPath, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Jobs returns snapshots of all tracked copy jobs.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out
}

func (m *Manager) volumeLock(mountPath string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.volLocks[mountPath]
	if !ok {
		lock = &sync.Mutex{}
		m.volLocks[mountPath] = lock
	}
	return lock
}

// Copy places the artifact onto the volume's games directory under a
// "Title [ID]" folder, streaming through a temp file and verifying the
// result before it counts as done.
func (m *Manager) Copy(ctx context.Context, artifactID string, vol Volume, opts CopyOptions) (*Job, error) {
	artifact, err := m.store.Lookup(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: no artifact %s in catalog", ErrSourceMissing, artifactID)
	}
	if !fileutil.Exists(artifact.Path) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, artifact.Path)
	}

	destDir := filepath.Join(vol.MountPath, m.cfg.Device.GamesDir, gameDirName(artifact))
	destPath := filepath.Join(destDir, filepath.Base(artifact.Path))

	lock := m.volumeLock(vol.MountPath)
	lock.Lock()
	defer lock.Unlock()

	// Leftovers from interrupted runs go first so they neither collide with
	// this copy nor count against free space.
	m.CollectOrphans(vol)

	// Synchronous rejections happen before a job exists; only work that
	// actually starts shows up in Jobs().
	if fileutil.Exists(destPath) && !opts.Overwrite {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOnTarget, destPath)
	}

	// Re-check free space immediately before writing; the volume may have
	// filled since it was listed.
	free, err := m.freeSpace(vol.MountPath)
	if err != nil {
		return nil, fmt.Errorf("check free space on %s: %w", vol.MountPath, err)
	}
	if need := uint64(artifact.SizeBytes) + spaceMargin; free < need {
		return nil, fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, need, free)
	}

	job := &Job{
		ID:         uuid.NewString(),
		ArtifactID: artifact.ID,
		SourcePath: artifact.Path,
		DestPath:   destPath,
		Volume:     vol.MountPath,
		State:      JobPending,
		Total:      artifact.SizeBytes,
		StartedAt:  time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
	m.publishJobState(job)

	if err := m.runCopy(ctx, job, artifact, destDir); err != nil {
		m.setJobState(job, JobFailed, err)
		return job, err
	}
	m.setJobState(job, JobDone, nil)
	m.logger.Info("copy complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("artifact_id", job.ArtifactID),
		logging.String(logging.FieldVolume, job.Volume),
		logging.String("path", job.DestPath))
	return job, nil
}

func (m *Manager) runCopy(ctx context.Context, job *Job, artifact *catalog.Artifact, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}

	tempPath := filepath.Join(destDir, partialPrefix+uuid.NewString())
	if err := m.streamCopy(ctx, job, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, job.DestPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	if m.cfg.Device.VerifyAfterCopy {
		m.setJobState(job, JobVerifying, nil)
		if err := m.verify(job, artifact); err != nil {
			_ = os.Remove(job.DestPath)
			return err
		}
	}
	return nil
}

func (m *Manager) streamCopy(ctx context.Context, job *Job, tempPath string) error {
	m.setJobState(job, JobCopying, nil)

	in, err := os.Open(job.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, job.SourcePath)
	}
	defer in.Close()

	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = out.Close() }()

	bufSize := m.cfg.Device.BufferSize
	if bufSize <= 0 {
		bufSize = 1 << 20
	}
	buf := make([]byte, bufSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				if errors.Is(writeErr, unix.ENOSPC) {
					return fmt.Errorf("%w: %v", ErrInsufficientSpace, writeErr)
				}
				return fmt.Errorf("write chunk: %w", writeErr)
			}
			written += int64(n)
			m.observeProgress(job, written)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read chunk: %w", readErr)
		}
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	return out.Close()
}

func (m *Manager) verify(job *Job, artifact *catalog.Artifact) error {
	size, err := fileutil.FileSize(job.DestPath)
	if err != nil {
		return fmt.Errorf("stat copied file: %w", err)
	}
	if size != artifact.SizeBytes {
		return fmt.Errorf("%w: size %d, expected %d", ErrVerificationMismatch, size, artifact.SizeBytes)
	}

	expected := artifact.Checksum
	if expected == "" {
		expected, err = fileutil.Checksum(job.SourcePath)
		if err != nil {
			return fmt.Errorf("checksum source: %w", err)
		}
	}
	actual, err := fileutil.Checksum(job.DestPath)
	if err != nil {
		return fmt.Errorf("checksum copy: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("%w: checksum %s, expected %s", ErrVerificationMismatch, actual, expected)
	}
	return nil
}

// Remove deletes an artifact's directory from the volume and, when
// configured, prunes now-empty parents up to the games directory.
func (m *Manager) Remove(ctx context.Context, artifactID string, vol Volume) error {
	lock := m.volumeLock(vol.MountPath)
	lock.Lock()
	defer lock.Unlock()

	games, err := m.Games(vol)
	if err != nil {
		return err
	}
	var target *Game
	for i := range games {
		if games[i].ID == artifactID {
			target = &games[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("artifact %s not found on %s", artifactID, vol.MountPath)
	}

	if err := os.RemoveAll(target.Dir); err != nil {
		return fmt.Errorf("remove %s: %w", target.Dir, err)
	}
	m.logger.Info("removed from volume",
		logging.String("artifact_id", artifactID),
		logging.String(logging.FieldVolume, vol.MountPath),
		logging.String("path", target.Dir))

	if m.cfg.Device.CleanupEmptyDirs {
		root := filepath.Join(vol.MountPath, m.cfg.Device.GamesDir)
		pruneEmptyDirs(filepath.Dir(target.Dir), root)
	}
	return nil
}

// pruneEmptyDirs removes empty directories walking upward, stopping at (and
// keeping) root.
func pruneEmptyDirs(dir, root string) {
	for dir != root && strings.HasPrefix(dir, root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// CollectOrphans removes leftover partial files from interrupted copies.
// Best effort; unreadable paths are skipped.
func (m *Manager) CollectOrphans(vol Volume) []string {
	root := filepath.Join(vol.MountPath, m.cfg.Device.GamesDir)
	var removed []string
	_ = filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), partialPrefix) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr == nil {
			removed = append(removed, path)
			m.logger.Info("removed orphaned partial",
				logging.String(logging.FieldVolume, vol.MountPath),
				logging.String("path", path))
		}
		return nil
	})
	return removed
}

func (m *Manager) setJobState(job *Job, state JobState, err error) {
	m.mu.Lock()
	job.State = state
	if err != nil {
		job.Err = err.Error()
	}
	if state == JobDone || state == JobFailed {
		job.FinishedAt = time.Now()
	}
	m.mu.Unlock()
	m.publishJobState(job)
}

func (m *Manager) publishJobState(job *Job) {
	m.mu.Lock()
	snap := *job
	m.mu.Unlock()
	m.hub.Publish(progress.Event{
		Kind:    progress.KindCopyState,
		JobID:   snap.ID,
		TaskID:  snap.ArtifactID,
		State:   string(snap.State),
		Bytes:   snap.Bytes,
		Total:   snap.Total,
		Volume:  snap.Volume,
		Message: snap.Err,
	})
}

func (m *Manager) observeProgress(job *Job, written int64) {
	m.mu.Lock()
	job.Bytes = written
	snap := *job
	m.mu.Unlock()
	m.hub.Publish(progress.Event{
		Kind:   progress.KindCopyProgress,
		JobID:  snap.ID,
		TaskID: snap.ArtifactID,
		State:  string(snap.State),
		Bytes:  snap.Bytes,
		Total:  snap.Total,
		Volume: snap.Volume,
	})
}

// gameDirName builds the loader-layout directory name for an artifact.
func gameDirName(artifact *catalog.Artifact) string {
	title := strings.TrimSpace(artifact.Title)
	if title == "" {
		title = artifact.ID
	}
	name := fmt.Sprintf("%s [%s]", textutil.DisplayTitle(title), artifact.ID)
	return textutil.SanitizeFileName(name)
}
