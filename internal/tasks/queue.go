package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrClosed      = errors.New("task queue closed")
	ErrQueueFull   = errors.New("task queue full")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Done() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Func is a task body. It may run more than once, so it must be idempotent.
type Func func(ctx context.Context) (any, error)

// Observer is told about queue activity; metrics implements it.
type Observer interface {
	TaskEnqueued(kind string)
	TaskFinished(kind string, status string, took time.Duration)
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) TaskEnqueued(string)                        {}
func (nopObserver) TaskFinished(string, string, time.Duration) {}
func (nopObserver) QueueDepth(int)                             {}

// Snapshot is the pollable view of a task.
type Snapshot struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type task struct {
	mu   sync.RWMutex
	snap Snapshot
	run  Func
}

func (t *task) snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

const queueCapacity = 256

// Queue runs tasks on a fixed pool of workers with at-least-once retries.
type Queue struct {
	mu      sync.RWMutex
	tasks   map[string]*task
	jobs    chan *task
	closed  bool
	pending int

	workers   int
	backoff   time.Duration
	retention time.Duration
	logger    zerolog.Logger
	observer  Observer
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.TaskConfig, observer Observer, logger zerolog.Logger) *Queue {
	if observer == nil {
		observer = nopObserver{}
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		tasks:     make(map[string]*task),
		jobs:      make(chan *task, queueCapacity),
		workers:   workers,
		backoff:   cfg.RetryBackoff,
		retention: cfg.Retention,
		logger:    logger,
		observer:  observer,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the workers and the reaper for finished tasks.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	if q.retention > 0 {
		q.wg.Add(1)
		go q.reap()
	}
	q.logger.Info().Int("workers", q.workers).Msg("Task queue started")
}

// Enqueue schedules fn and returns its id. maxAttempts below one means one.
func (q *Queue) Enqueue(kind string, maxAttempts int, fn Func) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	t := &task{
		run: fn,
		snap: Snapshot{
			ID:          uuid.NewString(),
			Kind:        kind,
			Status:      StatusQueued,
			MaxAttempts: maxAttempts,
			CreatedAt:   q.now(),
		},
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	select {
	case q.jobs <- t:
	default:
		return "", ErrQueueFull
	}
	q.tasks[t.snap.ID] = t
	q.pending++
	q.observer.TaskEnqueued(kind)
	q.observer.QueueDepth(q.pending)

	q.logger.Debug().Str("task", t.snap.ID).Str("kind", kind).Msg("Task queued")
	return t.snap.ID, nil
}

func (q *Queue) Get(id string) (Snapshot, error) {
	q.mu.RLock()
	t, ok := q.tasks[id]
	q.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrUnknownTask
	}
	return t.snapshot(), nil
}

// List returns every retained task, newest first.
func (q *Queue) List() []Snapshot {
	q.mu.RLock()
	out := make([]Snapshot, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.snapshot())
	}
	q.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Wait blocks until the task is done or ctx ends.
func (q *Queue) Wait(ctx context.Context, id string) (Snapshot, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap, err := q.Get(id)
		if err != nil {
			return snap, err
		}
		if snap.Status.Done() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case t, ok := <-q.jobs:
			if !ok {
				return
			}
			q.execute(t)
		}
	}
}

func (q *Queue) execute(t *task) {
	start := q.now()
	t.mu.Lock()
	t.snap.Status = StatusRunning
	t.snap.Attempts++
	t.snap.StartedAt = &start
	attempt, kind, id, maxAttempts := t.snap.Attempts, t.snap.Kind, t.snap.ID, t.snap.MaxAttempts
	t.mu.Unlock()

	log := q.logger.With().Str("task", id).Str("kind", kind).Int("attempt", attempt).Logger()
	log.Info().Msg("Task started")

	result, err := q.safeRun(t.run)
	finished := q.now()

	if err != nil && attempt < maxAttempts && q.ctx.Err() == nil {
		t.mu.Lock()
		t.snap.Status = StatusQueued
		t.snap.Error = err.Error()
		t.mu.Unlock()

		delay := q.backoff * time.Duration(attempt)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Task failed, retrying")
		q.retry(t, delay)
		return
	}

	t.mu.Lock()
	t.snap.FinishedAt = &finished
	if err != nil {
		t.snap.Status = StatusFailed
		t.snap.Error = err.Error()
	} else {
		t.snap.Status = StatusSucceeded
		t.snap.Error = ""
		t.snap.Result = result
	}
	status := t.snap.Status
	t.mu.Unlock()

	q.mu.Lock()
	q.pending--
	q.observer.QueueDepth(q.pending)
	q.mu.Unlock()
	q.observer.TaskFinished(kind, string(status), finished.Sub(start))

	if err != nil {
		log.Error().Err(err).Msg("Task failed")
		return
	}
	log.Info().Dur("took", finished.Sub(start)).Msg("Task finished")
}

func (q *Queue) safeRun(fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(q.ctx)
}

func (q *Queue) retry(t *task, delay time.Duration) {
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if !q.closed {
			select {
			case q.jobs <- t:
				return
			default:
			}
		}
		now := q.now()
		t.mu.Lock()
		t.snap.Status = StatusFailed
		t.snap.FinishedAt = &now
		t.mu.Unlock()
		q.pending--
		q.observer.QueueDepth(q.pending)
	})
}

func (q *Queue) reap() {
	defer q.wg.Done()
	interval := q.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.Prune()
		}
	}
}

// Prune forgets finished tasks older than the retention window.
func (q *Queue) Prune() int {
	cutoff := q.now().Add(-q.retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, t := range q.tasks {
		snap := t.snapshot()
		if snap.Status.Done() && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			delete(q.tasks, id)
			removed++
		}
	}
	return removed
}

// Close stops accepting work and waits for running tasks until ctx ends,
// after which their contexts are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for {
			q.mu.RLock()
			idle := q.pending == 0
			q.mu.RUnlock()
			if idle {
				break
			}
			select {
			case <-q.ctx.Done():
				close(done)
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	q.cancel()
	q.wg.Wait()
	q.logger.Info().Msg("Task queue stopped")
	return err
}
