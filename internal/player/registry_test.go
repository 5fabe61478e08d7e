package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coah80/pastvoices/internal/models"
)

type fakeHandle struct {
	mu        sync.Mutex
	paused    bool
	position  int
	volume    float64
	muted     bool
	hasData   bool
	detached  bool
	loads     int
	playCalls int
	playErrs  []error
	block     chan struct{}
}

func newHandle(hasData bool) *fakeHandle {
	return &fakeHandle{paused: true, volume: 0.8, hasData: hasData}
}

func (h *fakeHandle) Play(ctx context.Context) error {
	h.mu.Lock()
	h.playCalls++
	block := h.block
	var err error
	if len(h.playErrs) > 0 {
		err = h.playErrs[0]
		h.playErrs = h.playErrs[1:]
	}
	h.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.paused = false
	h.hasData = true
	h.position = 1
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

func (h *fakeHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *fakeHandle) Rewind() {
	h.mu.Lock()
	h.position = 0
	h.mu.Unlock()
}

func (h *fakeHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

func (h *fakeHandle) SetVolume(v float64) {
	h.mu.Lock()
	h.volume = v
	h.mu.Unlock()
}

func (h *fakeHandle) SetMuted(m bool) {
	h.mu.Lock()
	h.muted = m
	h.mu.Unlock()
}

func (h *fakeHandle) DetachSource() {
	h.mu.Lock()
	h.detached = true
	h.mu.Unlock()
}

func (h *fakeHandle) Load() {
	h.mu.Lock()
	h.loads++
	if h.detached {
		h.hasData = false
	}
	h.mu.Unlock()
}

func (h *fakeHandle) HasData() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasData
}

func (h *fakeHandle) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playCalls
}

func newRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.SweepInterval == 0 {
		opts.SweepInterval = -1
	}
	r := New(opts)
	t.Cleanup(r.Close)
	return r
}

func playingCount(r *Registry) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.players {
		if e.state == StatePlaying {
			n++
		}
	}
	return n
}

func TestPlay_SingleActivePlayer(t *testing.T) {
	r := newRegistry(t, Options{})
	handles := map[int64]*fakeHandle{}
	for id := int64(1); id <= 3; id++ {
		handles[id] = newHandle(true)
		require.NoError(t, r.Register(id, handles[id]))
	}
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3, 1, 1, 2} {
		require.NoError(t, r.Play(ctx, id))
		assert.Equal(t, 1, playingCount(r))
		st, _ := r.State(id)
		assert.Equal(t, StatePlaying, st)

		for other, h := range handles {
			if other == id {
				continue
			}
			assert.True(t, h.Paused())
			assert.Equal(t, 0, h.position)
		}
	}
}

func TestPlay_LargeAssetReclamation(t *testing.T) {
	r := newRegistry(t, Options{Classifier: ClassifierFunc(func(id int64) bool { return id == 1 })})
	large, small, next := newHandle(true), newHandle(true), newHandle(true)
	require.NoError(t, r.Register(1, large))
	require.NoError(t, r.Register(2, small))
	require.NoError(t, r.Register(3, next))
	ctx := context.Background()

	require.NoError(t, r.Play(ctx, 1))
	require.NoError(t, r.Play(ctx, 3))

	assert.True(t, large.detached)
	assert.Equal(t, 1, large.loads)
	assert.False(t, large.HasData(), "readiness resets once the source is dropped")
	st, _ := r.State(1)
	assert.Equal(t, StateIdle, st)

	require.NoError(t, r.Play(ctx, 2))
	require.NoError(t, r.Play(ctx, 3))
	assert.False(t, small.detached)
	assert.Zero(t, small.loads)
	assert.True(t, small.HasData())
	assert.Equal(t, 0, small.position)

	assert.True(t, r.IsLargeAsset(1))
	assert.False(t, r.IsLargeAsset(2))
}

func TestPlay_FadeIn(t *testing.T) {
	r := newRegistry(t, Options{FadeDelay: 20 * time.Millisecond})
	h := newHandle(true)
	require.NoError(t, r.Register(1, h))

	require.NoError(t, r.Play(context.Background(), 1))
	assert.InDelta(t, DefaultFadeVolume, h.Volume(), 0.0001)
	assert.Eventually(t, func() bool { return h.Volume() == 0.8 }, time.Second, 5*time.Millisecond)
}

func TestPlay_MutedRetry(t *testing.T) {
	r := newRegistry(t, Options{})
	h := newHandle(true)
	h.playErrs = []error{ErrNotAllowed}
	require.NoError(t, r.Register(1, h))

	require.NoError(t, r.Play(context.Background(), 1))
	assert.True(t, h.muted)
	assert.Equal(t, 2, h.calls())
	st, _ := r.State(1)
	assert.Equal(t, StatePlaying, st)
}

func TestPlay_FailureLeavesOthersAlone(t *testing.T) {
	r := newRegistry(t, Options{})
	ok, bad := newHandle(true), newHandle(true)
	bad.playErrs = []error{ErrNotAllowed, ErrNotAllowed}
	require.NoError(t, r.Register(1, ok))
	require.NoError(t, r.Register(2, bad))
	ctx := context.Background()

	require.NoError(t, r.Play(ctx, 1))
	err := r.Play(ctx, 2)
	require.ErrorIs(t, err, ErrNotAllowed)

	st, _ := r.State(2)
	assert.Equal(t, StateError, st)
	assert.InDelta(t, 0.8, bad.Volume(), 0.0001)

	st, ok1 := r.State(1)
	assert.True(t, ok1)
	assert.Equal(t, StateIdle, st)

	require.NoError(t, r.Play(ctx, 1))
	st, _ = r.State(1)
	assert.Equal(t, StatePlaying, st)
}

func TestPlay_StaleAttemptIgnored(t *testing.T) {
	r := newRegistry(t, Options{})
	slow, fast := newHandle(false), newHandle(true)
	slow.block = make(chan struct{})
	require.NoError(t, r.Register(1, slow))
	require.NoError(t, r.Register(2, fast))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- r.Play(ctx, 1) }()
	require.Eventually(t, func() bool { return slow.calls() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Play(ctx, 2))
	close(slow.block)
	require.NoError(t, <-done)

	assert.True(t, slow.Paused(), "overtaken attempt must not keep playing")
	st, _ := r.State(1)
	assert.Equal(t, StateIdle, st)
	st, _ = r.State(2)
	assert.Equal(t, StatePlaying, st)
	assert.Equal(t, 1, playingCount(r))
}

func TestStopAndEnded(t *testing.T) {
	r := newRegistry(t, Options{})
	h := newHandle(true)
	require.NoError(t, r.Register(1, h))
	ctx := context.Background()

	require.NoError(t, r.Play(ctx, 1))
	require.NoError(t, r.Stop(1))
	assert.True(t, h.Paused())
	st, _ := r.State(1)
	assert.Equal(t, StateIdle, st)

	require.NoError(t, r.Play(ctx, 1))
	r.Ended(1)
	st, _ = r.State(1)
	assert.Equal(t, StateIdle, st)

	assert.ErrorIs(t, r.Stop(9), ErrNotRegistered)
	assert.ErrorIs(t, r.Play(ctx, 9), ErrNotRegistered)
}

func TestUnregister(t *testing.T) {
	r := newRegistry(t, Options{})
	h := newHandle(true)
	require.NoError(t, r.Register(1, h))
	require.NoError(t, r.Play(context.Background(), 1))

	r.Unregister(1)
	_, ok := r.State(1)
	assert.False(t, ok)
	assert.False(t, h.Paused(), "unregister does not touch the handle")
}

func TestSweep_ReloadsStalledPlayer(t *testing.T) {
	r := newRegistry(t, Options{SweepInterval: time.Hour})
	now := time.Now()
	r.mu.Lock()
	r.now = func() time.Time { return now }
	r.mu.Unlock()

	stuck := newHandle(false)
	stuck.block = make(chan struct{})
	defer close(stuck.block)
	healthy := newHandle(true)
	require.NoError(t, r.Register(1, stuck))
	require.NoError(t, r.Register(2, healthy))

	go r.Play(context.Background(), 1)
	require.Eventually(t, func() bool { return stuck.calls() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 0, r.sweep(), "first sighting only starts the clock")
	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0, r.sweep())
	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, r.sweep())

	stuck.mu.Lock()
	loads := stuck.loads
	stuck.mu.Unlock()
	assert.Equal(t, 1, loads)
	assert.Zero(t, healthy.loads)

	st, ok := r.State(1)
	require.True(t, ok, "reloaded player stays registered")
	assert.Equal(t, StateLoading, st)
}

func TestClose(t *testing.T) {
	r := New(Options{SweepInterval: 10 * time.Millisecond})
	r.Close()
	r.Close()
	assert.ErrorIs(t, r.Register(1, newHandle(true)), ErrClosed)
	assert.ErrorIs(t, r.Play(context.Background(), 1), ErrClosed)
}

func TestFromPersonas(t *testing.T) {
	c := FromPersonas([]models.Persona{{ID: 4, IsLargeAsset: true}, {ID: 5}})
	assert.True(t, c.IsLargeAsset(4))
	assert.False(t, c.IsLargeAsset(5))
	assert.False(t, c.IsLargeAsset(6))
}

func TestPlay_InterruptedFadeRestoresVolume(t *testing.T) {
	r := newRegistry(t, Options{FadeDelay: time.Hour})
	a, b := newHandle(true), newHandle(true)
	require.NoError(t, r.Register(1, a))
	require.NoError(t, r.Register(2, b))
	ctx := context.Background()

	require.NoError(t, r.Play(ctx, 1))
	assert.InDelta(t, DefaultFadeVolume, a.Volume(), 0.0001)

	require.NoError(t, r.Play(ctx, 1))
	assert.InDelta(t, DefaultFadeVolume, a.Volume(), 0.0001)

	require.NoError(t, r.Play(ctx, 2))
	assert.InDelta(t, 0.8, a.Volume(), 0.0001, "released mid-fade")
	require.NoError(t, r.Stop(2))
	assert.InDelta(t, 0.8, b.Volume(), 0.0001, "stopped mid-fade")
}

func TestStateEvents(t *testing.T) {
	r := newRegistry(t, Options{FadeDelay: time.Hour})
	h := newHandle(false)
	require.NoError(t, r.Register(1, h))
	st, _ := r.State(1)
	assert.Equal(t, StateIdle, st)

	r.Ready(1)
	st, _ = r.State(1)
	assert.Equal(t, StateReady, st)

	ctx := context.Background()
	require.NoError(t, r.Play(ctx, 1))
	r.Ready(1)
	st, _ = r.State(1)
	assert.Equal(t, StatePlaying, st, "ready does not demote a playing handle")

	r.Failed(1, errors.New("decode error"))
	st, _ = r.State(1)
	assert.Equal(t, StateError, st)
	assert.InDelta(t, 0.8, h.Volume(), 0.0001, "pending fade is undone")

	require.NoError(t, r.Stop(1))
	r.Failed(1, errors.New("late error"))
	st, _ = r.State(1)
	assert.Equal(t, StateIdle, st, "idle handles ignore errors")

	require.NoError(t, r.Play(ctx, 1))
	st, _ = r.State(1)
	assert.Equal(t, StatePlaying, st, "error state recovers on the next play")

	r.Ready(9)
	r.Failed(9, errors.New("unknown"))
}
