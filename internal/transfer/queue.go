package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gantry/internal/catalog"
	"gantry/internal/config"
	"gantry/internal/fileutil"
	"gantry/internal/logging"
	"gantry/internal/progress"
	"gantry/internal/textutil"
)

// Queue admits transfers in arrival order under a concurrency limit, retries
// recoverable failures in place, and records completed artifacts in the
// catalog. All task state is written through the queue mutex.
type Queue struct {
	cfg       *config.Config
	fetcher   Fetcher
	extractor Extractor
	checksum  ChecksumFunc
	store     *catalog.Store
	hub       *progress.Hub
	policy    Policy
	logger    *slog.Logger

	mu             sync.Mutex
	tasks          map[string]*task
	pending        []*task
	active         int
	paused         bool
	closed         bool
	lastCompletion time.Time

	kick      chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// Options bundle the queue collaborators.
type Options struct {
	Fetcher   Fetcher
	Extractor Extractor
	Checksum  ChecksumFunc
	Store     *catalog.Store
	Hub       *progress.Hub
	Logger    *slog.Logger
	// Policy overrides the retry policy derived from configuration.
	Policy *Policy
}

// NewQueue builds a queue from configuration and collaborators.
func NewQueue(cfg *config.Config, opts Options) (*Queue, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Store == nil {
		return nil, errors.New("catalog store is required")
	}
	checksum := opts.Checksum
	if checksum == nil {
		checksum = fileutil.Checksum
	}
	hub := opts.Hub
	if hub == nil {
		hub = progress.NewHub(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	policy := Policy{
		MaxRetries: cfg.Downloads.MaxRetries,
		BaseDelay:  time.Duration(cfg.Downloads.RetryBaseSeconds) * time.Second,
		MaxDelay:   time.Duration(cfg.Downloads.RetryMaxSeconds) * time.Second,
	}
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	return &Queue{
		cfg:       cfg,
		fetcher:   opts.Fetcher,
		extractor: opts.Extractor,
		checksum:  checksum,
		store:     opts.Store,
		hub:       hub,
		policy:    policy,
		logger: logging.NewComponentLogger(logger, "queue"),
		tasks:  make(map[string]*task),
		kick:   make(chan struct{}, 1),
	}, nil
}

// Start launches the admission scheduler. It must be called once before
// Enqueue admits anything; tasks may still be enqueued beforehand.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.runCtx != nil {
		return
	}
	q.runCtx, q.runCancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.schedule()
}

// Stop cancels all in-flight work and waits for workers to exit. The queue
// cannot be restarted.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	cancel := q.runCancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.notify()
	q.wg.Wait()
}

// Enqueue appends a transfer request. Duplicate in-flight identifiers return
// ErrDuplicateRequest; identifiers already present in the catalog return
// ErrAlreadyAcquired.
func (q *Queue) Enqueue(ctx context.Context, req Request) (Task, error) {
	return q.enqueue(ctx, req, false)
}

// EnqueueFront prepends a transfer request ahead of all waiting tasks. The
// currently active task is not preempted.
func (q *Queue) EnqueueFront(ctx context.Context, req Request) (Task, error) {
	return q.enqueue(ctx, req, true)
}

func (q *Queue) enqueue(ctx context.Context, req Request, front bool) (Task, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	if req.ID == "" {
		return Task{}, errors.New("request id is required")
	}
	if req.SourceURL == "" {
		return Task{}, errors.New("request source url is required")
	}

	existing, err := q.store.Lookup(ctx, req.ID)
	if err != nil {
		return Task{}, fmt.Errorf("catalog lookup: %w", err)
	}
	if existing != nil {
		return Task{}, fmt.Errorf("%w: %s at %s", ErrAlreadyAcquired, req.ID, existing.Path)
	}

	target, err := q.targetPath(req)
	if err != nil {
		return Task{}, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Task{}, ErrQueueClosed
	}
	if prior, ok := q.tasks[req.ID]; ok && !prior.State.Terminal() {
		q.mu.Unlock()
		return Task{}, fmt.Errorf("%w: %s", ErrDuplicateRequest, req.ID)
	}

	t := &task{
		Task: Task{
			ID:         req.ID,
			Title:      req.Title,
			SourceURL:  req.SourceURL,
			TargetPath: target,
			State:      StateQueued,
			Total:      progress.UnknownTotal,
			ETASeconds: -1,
			EnqueuedAt: time.Now(),
		},
		meter: progress.NewMeter(),
	}
	q.tasks[req.ID] = t
	if front {
		q.pending = append([]*task{t}, q.pending...)
	} else {
		q.pending = append(q.pending, t)
	}
	snap := t.snapshot()
	// Published while the mutex is still held: the scheduler cannot admit the
	// task (and publish active) until enqueue releases it. Publish never
	// blocks, so holding the lock across it is safe.
	q.publishState(snap)
	q.mu.Unlock()

	q.logger.Info("transfer queued",
		logging.String(logging.FieldTaskID, snap.ID),
		logging.String("source", snap.SourceURL),
		logging.Bool("front", front))
	q.notify()
	return snap, nil
}

// Cancel requests cooperative cancellation. Queued tasks are cancelled
// immediately; active tasks have their attempt context cancelled. Terminal
// tasks are a no-op.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.State.Terminal() {
		q.mu.Unlock()
		return nil
	}
	if t.State == StateQueued {
		q.removePending(t)
		t.State = StateCancelled
		t.FinishedAt = time.Now()
		t.FailureKind = "cancelled"
		snap := t.snapshot()
		q.mu.Unlock()
		q.publishState(snap)
		q.logger.Info("transfer cancelled", logging.String(logging.FieldTaskID, id))
		return nil
	}
	cancel := t.cancelAttempt
	t.cancelCause = context.Canceled
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Pause stops admitting new tasks. In-flight tasks run to completion.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables admission.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.notify()
}

// Tasks returns snapshots of every tracked task in enqueue order.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// Task returns the snapshot for a single identifier.
func (q *Queue) Task(id string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return t.snapshot(), nil
}

// Ack removes a terminal task from tracking so its identifier may be
// enqueued again.
func (q *Queue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if !t.State.Terminal() {
		return fmt.Errorf("task %s is %s, not terminal", id, t.State)
	}
	delete(q.tasks, id)
	return nil
}

// Idle reports whether no task is queued or active.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active == 0 && len(q.pending) == 0
}

func (q *Queue) notify() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *Queue) removePending(t *task) {
	for i, p := range q.pending {
		if p == t {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// schedule is the single admission loop. It wakes on enqueue, completion,
// resume, and the inter-admission delay timer.
func (q *Queue) schedule() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		var wait time.Duration
		var next *task
		if !q.paused && q.active < q.cfg.Downloads.MaxConcurrent && len(q.pending) > 0 {
			wait = q.admissionWait()
			if wait <= 0 {
				next = q.pending[0]
				q.pending = q.pending[1:]
				q.active++
				next.State = StateActive
				next.StartedAt = time.Now()
			}
		}
		var snap Task
		if next != nil {
			snap = next.snapshot()
		}
		q.mu.Unlock()

		if next != nil {
			q.publishState(snap)
			q.logger.Info("transfer admitted", logging.String(logging.FieldTaskID, snap.ID))
			q.wg.Add(1)
			go q.runTask(next)
			continue
		}

		var wake <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			wake = timer.C
		}
		select {
		case <-q.runCtx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.kick:
			if timer != nil {
				timer.Stop()
			}
		case <-wake:
		}
	}
}

// admissionWait returns how long admission must still hold off, measured
// from the previous task's completion. Caller holds the mutex.
func (q *Queue) admissionWait() time.Duration {
	delay := q.cfg.QueueDelay()
	if delay <= 0 || q.lastCompletion.IsZero() {
		return 0
	}
	return delay - time.Since(q.lastCompletion)
}

// runTask drives one task through its attempts while it holds an active
// slot. Backoff between attempts happens here, without releasing the slot.
func (q *Queue) runTask(t *task) {
	defer q.wg.Done()
	for {
		attemptCtx, cancel := context.WithCancelCause(q.runCtx)
		q.mu.Lock()
		t.Attempt++
		t.Bytes = 0
		t.Total = progress.UnknownTotal
		t.Rate = 0
		t.ETASeconds = -1
		t.meter.Reset()
		t.lastProgress = time.Now()
		t.cancelAttempt = func() { cancel(context.Canceled) }
		snap := t.snapshot()
		q.mu.Unlock()
		q.publishState(snap)

		stallDone := make(chan struct{})
		go q.watchStall(attemptCtx, t, cancel, stallDone)

		fetchErr := q.fetcher.Fetch(attemptCtx, snap.SourceURL, snap.TargetPath, q.progressFunc(t))
		cancel(nil)
		<-stallDone

		if fetchErr == nil {
			finalPath, finalErr := q.finalize(snap)
			if finalErr == nil {
				q.mu.Lock()
				t.TargetPath = finalPath
				q.mu.Unlock()
				q.finish(t, StateSucceeded, nil)
				return
			}
			// The raw file stays on disk for inspection.
			q.finish(t, StateFailed, finalErr)
			return
		}

		_ = fileutil.RemoveIfExists(snap.TargetPath)

		if cause := context.Cause(attemptCtx); cause != nil && errors.Is(cause, ErrStalled) {
			fetchErr = Wrap(ErrStalled, "fetch", "no progress within stall timeout", fetchErr)
		} else if errors.Is(fetchErr, context.Canceled) || q.runCtx.Err() != nil {
			q.finish(t, StateCancelled, fetchErr)
			return
		}

		decision := q.policy.Decide(snap.Attempt, fetchErr)
		if !decision.Retry {
			q.finish(t, StateFailed, fetchErr)
			return
		}

		q.logger.Warn("transfer attempt failed, retrying",
			logging.String(logging.FieldTaskID, snap.ID),
			logging.Int("attempt", snap.Attempt),
			logging.Duration("backoff", decision.Delay),
			logging.Error(fetchErr))
		if !q.waitBackoff(t, decision.Delay) {
			q.finish(t, StateCancelled, fetchErr)
			return
		}
	}
}

// waitBackoff sleeps between attempts while remaining cancellable. It
// reports false when the task or queue was cancelled during the wait.
func (q *Queue) waitBackoff(t *task, delay time.Duration) bool {
	waitCtx, cancel := context.WithCancel(q.runCtx)
	defer cancel()
	q.mu.Lock()
	t.cancelAttempt = cancel
	userCancelled := t.cancelCause != nil
	q.mu.Unlock()
	if userCancelled {
		return false
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-waitCtx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// watchStall cancels the attempt when no progress callback arrives within
// the stall timeout.
func (q *Queue) watchStall(ctx context.Context, t *task, cancel context.CancelCauseFunc, done chan<- struct{}) {
	defer close(done)
	timeout := q.cfg.StallTimeout()
	if timeout <= 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			q.mu.Lock()
			idle := time.Since(t.lastProgress)
			q.mu.Unlock()
			if idle >= timeout {
				cancel(ErrStalled)
				return
			}
			timer.Reset(timeout - idle)
		}
	}
}

// finalize runs post-processing for a completed fetch: archive extraction,
// checksum, and the catalog record. It returns the final artifact path.
func (q *Queue) finalize(snap Task) (string, error) {
	artifactPath := snap.TargetPath

	if q.cfg.IsArchivePath(snap.TargetPath) {
		if q.extractor == nil {
			return "", Wrap(ErrPostProcessing, "extract", "no extractor configured", nil)
		}
		images, err := q.extractor.Extract(q.runCtx, snap.TargetPath)
		if err != nil {
			if errors.Is(err, ErrInvalidArchive) {
				return "", err
			}
			return "", Wrap(ErrPostProcessing, "extract", snap.TargetPath, err)
		}
		if len(images) == 0 {
			return "", Wrap(ErrInvalidArchive, "extract", "archive holds no disc image", nil)
		}
		sort.Strings(images)
		artifactPath = images[0]
	}

	sum, err := q.checksum(artifactPath)
	if err != nil {
		return "", Wrap(ErrPostProcessing, "checksum", artifactPath, err)
	}
	size, err := fileutil.FileSize(artifactPath)
	if err != nil {
		return "", Wrap(ErrPostProcessing, "stat", artifactPath, err)
	}

	artifact := catalog.Artifact{
		ID:        snap.ID,
		Title:     snap.Title,
		Path:      artifactPath,
		SizeBytes: size,
		Checksum:  sum,
	}
	if err := q.store.Record(context.Background(), artifact); err != nil {
		return "", Wrap(ErrPostProcessing, "record", snap.ID, err)
	}
	return artifactPath, nil
}

// finish moves a task to its terminal state, releases the active slot, and
// stamps the completion time the admission delay is measured from.
func (q *Queue) finish(t *task, state State, err error) {
	q.mu.Lock()
	if terr := validTransition(t.State, state); terr != nil {
		q.mu.Unlock()
		q.logger.Error("dropping invalid transition",
			logging.String(logging.FieldTaskID, t.ID),
			logging.Error(terr))
		return
	}
	t.State = state
	t.FinishedAt = time.Now()
	t.cancelAttempt = nil
	if err != nil {
		t.Err = err.Error()
		t.FailureKind = FailureKind(err)
	}
	q.active--
	q.lastCompletion = time.Now()
	snap := t.snapshot()
	q.mu.Unlock()

	q.publishState(snap)
	switch state {
	case StateSucceeded:
		q.logger.Info("transfer complete",
			logging.String(logging.FieldTaskID, snap.ID),
			logging.String("path", snap.TargetPath),
			logging.Int("attempts", snap.Attempt))
	case StateCancelled:
		q.logger.Info("transfer cancelled", logging.String(logging.FieldTaskID, snap.ID))
	default:
		q.logger.Error("transfer failed",
			logging.String(logging.FieldTaskID, snap.ID),
			logging.Int("attempts", snap.Attempt),
			logging.String(logging.FieldErrorHint, snap.FailureKind),
			logging.Error(err))
	}
	q.notify()
}

func (q *Queue) progressFunc(t *task) ProgressFunc {
	return func(bytes, total int64) {
		now := time.Now()
		q.mu.Lock()
		if bytes < t.Bytes {
			bytes = t.Bytes
		}
		t.Bytes = bytes
		t.Total = total
		t.lastProgress = now
		t.Rate = t.meter.Observe(bytes, now)
		t.ETASeconds = t.meter.ETA(bytes, total)
		snap := t.snapshot()
		q.mu.Unlock()

		q.hub.Publish(progress.Event{
			Kind:    progress.KindTaskProgress,
			TaskID:  snap.ID,
			State:   string(snap.State),
			Attempt: snap.Attempt,
			Bytes:   snap.Bytes,
			Total:   snap.Total,
			Rate:    snap.Rate,
			ETA:     snap.ETASeconds,
		})
	}
}

func (q *Queue) publishState(snap Task) {
	q.hub.Publish(progress.Event{
		Kind:    progress.KindTaskState,
		TaskID:  snap.ID,
		State:   string(snap.State),
		Attempt: snap.Attempt,
		Bytes:   snap.Bytes,
		Total:   snap.Total,
		Message: snap.FailureKind,
	})
}

// targetPath derives where a fetched source lands inside the download
// directory. The extension follows the source URL; bare paths default to an
// image extension.
func (q *Queue) targetPath(req Request) (string, error) {
	parsed, err := url.Parse(req.SourceURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if !q.cfg.IsArchivePath("x"+ext) && !q.cfg.IsImagePath("x"+ext) {
		ext = ".iso"
	}

	name := req.Title
	if name == "" {
		name = req.ID
	} else {
		name = fmt.Sprintf("%s [%s]", req.Title, req.ID)
	}
	name = textutil.SanitizeFileName(name)
	if name == "" {
		name = req.ID
	}
	return filepath.Join(q.cfg.Paths.DownloadDir, name+ext), nil
}
