package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"gantry/internal/catalog"
	"gantry/internal/config"
	"gantry/internal/device"
	"gantry/internal/fetch"
	"gantry/internal/logging"
	"gantry/internal/progress"
	"gantry/internal/transfer"
)

// Engine wires the catalog, download queue, and device services together and
// enforces single-instance execution per state directory.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *catalog.Store
	hub     *progress.Hub
	queue   *transfer.Queue
	devices *device.Manager
	lister  *device.Lister
	watcher *device.Watcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs an engine with initialized dependencies. The caller owns
// Close.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	hub := progress.NewHub(0)
	queue, err := transfer.NewQueue(cfg, transfer.Options{
		Fetcher:   fetch.NewHTTPFetcher(),
		Extractor: fetch.NewExtractor(cfg, logger),
		Store:     store,
		Hub:       hub,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build queue: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "gantry.lock")
	return &Engine{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "engine"),
		store:    store,
		hub:      hub,
		queue:    queue,
		devices:  device.NewManager(cfg, store, hub, logger),
		lister:   device.NewLister(),
		watcher:  device.NewWatcher(logger, hub),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, reconciles the catalog against the
// download directory, and launches the queue scheduler and volume watcher.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Load() {
		return errors.New("engine already running")
	}

	ok, err := e.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gantry instance is using this state directory; " +
			"a running fetch owns the queue, cancel it with Ctrl+C in its terminal")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	// Bring catalog records in line with the download directory before any
	// dedup check runs. Best effort: a failed pass leaves stale records, not
	// a broken engine.
	if result, err := e.store.Reconcile(runCtx, e.cfg, nil, e.logger); err != nil {
		e.logger.Warn("startup reconcile failed", logging.Error(err))
	} else if len(result.Added) > 0 || len(result.Removed) > 0 {
		e.logger.Info("catalog reconciled",
			logging.Int("adopted", len(result.Added)),
			logging.Int("pruned", len(result.Removed)))
	}

	e.queue.Start(runCtx)
	_ = e.watcher.Start(runCtx)

	e.running.Store(true)
	e.logger.Info("engine started", logging.String("lock", e.lockPath))
	return nil
}

// Stop halts background work and releases the instance lock.
func (e *Engine) Stop() {
	if !e.running.Load() {
		return
	}

	e.watcher.Stop()
	e.queue.Stop()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if err := e.lock.Unlock(); err != nil {
		e.logger.Warn("failed to release instance lock", logging.Error(err))
	}
	e.running.Store(false)
	e.logger.Info("engine stopped")
}

// Close releases all engine resources.
func (e *Engine) Close() error {
	e.Stop()
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded without a matching Stop.
func (e *Engine) Running() bool { return e.running.Load() }

// Queue exposes the download queue.
func (e *Engine) Queue() *transfer.Queue { return e.queue }

// Store exposes the artifact catalog.
func (e *Engine) Store() *catalog.Store { return e.store }

// Devices exposes the copy manager.
func (e *Engine) Devices() *device.Manager { return e.devices }

// Volumes exposes the volume lister.
func (e *Engine) Volumes() *device.Lister { return e.lister }

// Hub exposes the progress event hub.
func (e *Engine) Hub() *progress.Hub { return e.hub }
