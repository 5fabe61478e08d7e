package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coah80/pastvoices/internal/config"
)

type recordingObserver struct {
	mu       sync.Mutex
	enqueued []string
	finished []string
}

func (o *recordingObserver) TaskEnqueued(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enqueued = append(o.enqueued, kind)
}

func (o *recordingObserver) TaskFinished(kind, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, kind+":"+status)
}

func (o *recordingObserver) QueueDepth(int) {}

func newTestQueue(t *testing.T, obs Observer) *Queue {
	t.Helper()
	q := New(config.TaskConfig{Workers: 2, RetryBackoff: time.Millisecond, Retention: time.Hour}, obs, zerolog.Nop())
	q.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		q.Close(ctx)
	})
	return q
}

func waitDone(t *testing.T, q *Queue, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := q.Wait(ctx, id)
	require.NoError(t, err)
	return snap
}

func TestQueue_RunsTaskAndRecordsResult(t *testing.T) {
	obs := &recordingObserver{}
	q := newTestQueue(t, obs)

	id, err := q.Enqueue("cleanup", 3, func(context.Context) (any, error) {
		return map[string]int{"deletedFiles": 1}, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap := waitDone(t, q, id)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 1, snap.Attempts)
	assert.Equal(t, map[string]int{"deletedFiles": 1}, snap.Result)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.FinishedAt)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"cleanup"}, obs.enqueued)
	assert.Equal(t, []string{"cleanup:succeeded"}, obs.finished)
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue(t, nil)
	var calls atomic.Int32

	id, err := q.Enqueue("cleanup", 3, func(context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("disk busy")
		}
		return "ok", nil
	})
	require.NoError(t, err)

	snap := waitDone(t, q, id)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 3, snap.Attempts)
	assert.Empty(t, snap.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_SingleAttemptIsNotRetried(t *testing.T) {
	q := newTestQueue(t, nil)
	var calls atomic.Int32

	id, err := q.Enqueue("optimize", 1, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("ffmpeg exited with code 1")
	})
	require.NoError(t, err)

	snap := waitDone(t, q, id)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, 1, snap.Attempts)
	assert.Equal(t, "ffmpeg exited with code 1", snap.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_PanicBecomesFailure(t *testing.T) {
	q := newTestQueue(t, nil)
	id, err := q.Enqueue("boom", 1, func(context.Context) (any, error) {
		panic("nil map")
	})
	require.NoError(t, err)

	snap := waitDone(t, q, id)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "nil map")
}

func TestQueue_UnknownTask(t *testing.T) {
	q := newTestQueue(t, nil)
	_, err := q.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestQueue_PruneDropsOldFinishedTasks(t *testing.T) {
	q := newTestQueue(t, nil)
	id, err := q.Enqueue("stats", 1, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	waitDone(t, q, id)

	assert.Equal(t, 0, q.Prune())
	q.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, q.Prune())

	_, err = q.Get(id)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestQueue_CloseRejectsNewWorkAndDrains(t *testing.T) {
	q := New(config.TaskConfig{Workers: 1}, nil, zerolog.Nop())
	q.Start()

	release := make(chan struct{})
	id, err := q.Enqueue("slow", 1, func(context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- q.Close(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := q.Enqueue("late", 1, func(context.Context) (any, error) { return nil, nil })
		return errors.Is(err, ErrClosed)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-closed)

	snap, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, snap.Status)
}

func TestQueue_CloseDeadlineCancelsRunningTasks(t *testing.T) {
	q := New(config.TaskConfig{Workers: 1}, nil, zerolog.Nop())
	q.Start()

	id, err := q.Enqueue("stuck", 1, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)

	snap, err := q.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
}
