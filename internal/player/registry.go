// Package player keeps at most one registered video handle playing at a time
// and releases decoder memory held by large assets when they lose focus.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/models"
)

var (
	// ErrNotAllowed is returned by Handle.Play when an autoplay policy
	// rejects unmuted playback.
	ErrNotAllowed    = errors.New("playback not allowed")
	ErrNotRegistered = errors.New("player not registered")
	ErrClosed        = errors.New("registry closed")
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StateError   State = "error"
)

// Handle is one live playback element.
type Handle interface {
	Play(ctx context.Context) error
	Pause()
	Paused() bool
	Rewind()
	Volume() float64
	SetVolume(v float64)
	SetMuted(muted bool)
	// DetachSource drops the media source so buffered data can be freed.
	DetachSource()
	// Load resets the element; after DetachSource it has no data.
	Load()
	// HasData reports whether at least the current frame is decoded.
	HasData() bool
}

type AssetClassifier interface {
	IsLargeAsset(id int64) bool
}

type ClassifierFunc func(id int64) bool

func (f ClassifierFunc) IsLargeAsset(id int64) bool { return f(id) }

// FromPersonas classifies by the measured isLargeAsset flag.
func FromPersonas(personas []models.Persona) ClassifierFunc {
	large := make(map[int64]bool, len(personas))
	for _, p := range personas {
		if p.IsLargeAsset {
			large[p.ID] = true
		}
	}
	return func(id int64) bool { return large[id] }
}

const (
	DefaultFadeDelay     = 300 * time.Millisecond
	DefaultFadeVolume    = 0.1
	DefaultSweepInterval = 5 * time.Second
)

type Options struct {
	FadeDelay  time.Duration
	FadeVolume float64
	// SweepInterval below zero disables the stall sweep.
	SweepInterval time.Duration
	Classifier    AssetClassifier
	Logger        zerolog.Logger
}

type entry struct {
	handle    Handle
	state     State
	attempt   uint64
	stalledAt time.Time
	fade      *time.Timer
	restore   float64
}

// stopFade cancels a pending fade-in and puts the volume back.
func (e *entry) stopFade() {
	if e.fade != nil {
		e.fade.Stop()
		e.fade = nil
		e.handle.SetVolume(e.restore)
	}
}

// Registry is created per page session and torn down with Close.
type Registry struct {
	opts Options

	mu      sync.Mutex
	players map[int64]*entry
	attempt uint64
	closed  bool
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
}

func New(opts Options) *Registry {
	if opts.FadeDelay <= 0 {
		opts.FadeDelay = DefaultFadeDelay
	}
	if opts.FadeVolume <= 0 {
		opts.FadeVolume = DefaultFadeVolume
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Classifier == nil {
		opts.Classifier = ClassifierFunc(func(int64) bool { return false })
	}
	r := &Registry{
		opts:    opts,
		players: make(map[int64]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go r.sweepLoop()
	} else {
		close(r.done)
	}
	return r
}

// Close stops the sweep and completes pending fades.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, e := range r.players {
		e.stopFade()
	}
	r.players = map[int64]*entry{}
	r.mu.Unlock()

	close(r.stop)
	<-r.done
}

func (r *Registry) Register(id int64, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if old, ok := r.players[id]; ok {
		old.stopFade()
	}
	state := StateIdle
	if h.HasData() {
		state = StateReady
	}
	r.players[id] = &entry{handle: h, state: state}
	return nil
}

// Unregister forgets id without touching its handle.
func (r *Registry) Unregister(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[id]; ok {
		e.stopFade()
		delete(r.players, id)
	}
}

func (r *Registry) State(id int64) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[id]
	if !ok {
		return "", false
	}
	return e.state, true
}

func (r *Registry) IsLargeAsset(id int64) bool {
	return r.opts.Classifier.IsLargeAsset(id)
}

// Play makes id the only playing handle. Every other handle that is not
// paused is paused and rewound first; large assets also drop their source.
// An attempt overtaken by a later Play is ignored when it resolves.
func (r *Registry) Play(ctx context.Context, id int64) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	e, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotRegistered, id)
	}
	r.attempt++
	attempt := r.attempt

	for otherID, other := range r.players {
		if otherID != id {
			r.release(otherID, other)
		}
	}

	h := e.handle
	e.stopFade()
	e.state = StateLoading
	e.attempt = attempt
	e.stalledAt = time.Time{}
	original := h.Volume()
	h.SetVolume(r.opts.FadeVolume)
	r.mu.Unlock()

	err := h.Play(ctx)
	if errors.Is(err, ErrNotAllowed) {
		r.opts.Logger.Debug().Int64("player", id).Msg("Playback blocked, retrying muted")
		h.SetMuted(true)
		err = h.Play(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, still := r.players[id]
	if !still || current.handle != h || r.closed {
		h.SetVolume(original)
		return nil
	}
	if attempt != r.attempt || current.attempt != attempt {
		// Lost the race; whatever the outcome, this handle must not play.
		h.SetVolume(original)
		if err == nil {
			h.Pause()
		}
		return nil
	}
	if err != nil {
		h.SetVolume(original)
		current.state = StateError
		r.opts.Logger.Warn().Err(err).Int64("player", id).Msg("Playback failed")
		return fmt.Errorf("playing %d: %w", id, err)
	}

	current.state = StatePlaying
	current.restore = original
	var fade *time.Timer
	fade = time.AfterFunc(r.opts.FadeDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.players[id]; ok && cur.fade == fade {
			h.SetVolume(original)
			cur.fade = nil
		}
	})
	current.fade = fade
	return nil
}

// release stops a non-paused handle. Caller holds r.mu.
func (r *Registry) release(id int64, e *entry) {
	if e.handle.Paused() {
		if e.state == StatePlaying || e.state == StateLoading {
			e.state = StateIdle
		}
		return
	}
	e.stopFade()
	e.handle.Pause()
	e.handle.Rewind()
	if r.opts.Classifier.IsLargeAsset(id) {
		e.handle.DetachSource()
		e.handle.Load()
		r.opts.Logger.Debug().Int64("player", id).Msg("Released large asset")
	}
	e.state = StateIdle
	e.stalledAt = time.Time{}
}

// Stop pauses and rewinds id.
func (r *Registry) Stop(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, id)
	}
	e.attempt = 0
	e.stopFade()
	e.handle.Pause()
	e.handle.Rewind()
	e.state = StateIdle
	e.stalledAt = time.Time{}
	return nil
}

// Ended moves a handle that finished on its own back to idle.
func (r *Registry) Ended(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[id]; ok && e.state == StatePlaying {
		e.state = StateIdle
	}
}

// Ready records that id has buffered enough data to start playback.
func (r *Registry) Ready(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.players[id]; ok && (e.state == StateIdle || e.state == StateLoading) {
		e.state = StateReady
		e.stalledAt = time.Time{}
	}
}

// Failed records a decode or network error reported by the element while
// loading or playing.
func (r *Registry) Failed(id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.players[id]
	if !ok || (e.state != StateLoading && e.state != StatePlaying) {
		return
	}
	e.stopFade()
	e.state = StateError
	e.stalledAt = time.Time{}
	r.opts.Logger.Warn().Err(err).Int64("player", id).Msg("Player reported an error")
}

func (r *Registry) sweepLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep force-reloads handles that want to play but have produced no data
// for a full interval, and returns how many it reloaded.
func (r *Registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	reloaded := 0
	for id, e := range r.players {
		wants := e.state == StateLoading || e.state == StatePlaying
		if !wants || e.handle.HasData() {
			e.stalledAt = time.Time{}
			continue
		}
		if e.stalledAt.IsZero() {
			e.stalledAt = now
			continue
		}
		if now.Sub(e.stalledAt) < r.opts.SweepInterval {
			continue
		}

		e.stopFade()
		e.handle.Load()
		r.players[id] = &entry{handle: e.handle, state: StateLoading, attempt: e.attempt}
		reloaded++
		r.opts.Logger.Info().Int64("player", id).Msg("Reloaded stalled player")
	}
	return reloaded
}
