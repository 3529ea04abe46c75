package playback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/gapbox/internal/domain/gap"
	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/media"
	"github.com/osa030/gapbox/internal/infra/player"
	"github.com/osa030/gapbox/internal/infra/silence"
)

// Errors
var (
	ErrPoolEmpty  = errors.New("pool is empty")
	ErrNotRunning = errors.New("not running")
)

// Pool is the read-only view of the track pool the sequencer picks from.
type Pool interface {
	Tracks() []track.Track
}

// Store resolves track handles and holds the ephemeral gap resources.
type Store interface {
	Open(handle string) (media.Resource, error)
	Create(name, mimeType string, data []byte, d time.Duration, ephemeral bool) media.Resource
	Release(handle string) error
}

// Config holds sequencer configuration.
type Config struct {
	Gap         gap.Spec   // Initial gap bounds
	FrameRate   int        // Progress recomputations per second while a gap plays
	EventBuffer int        // Event channel capacity
	Rand        *rand.Rand // Random source, seeded from the runtime if nil
}

// Snapshot is a read-only view of the sequencer.
type Snapshot struct {
	Phase     Phase
	Running   bool
	Track     *track.Track  // Current track (PlayingTrack only)
	Planned   time.Duration // Planned length of the current phase, zero if unknown
	Elapsed   time.Duration
	Remaining time.Duration // Gap countdown (PlayingGap) or track remainder when known
	Gap       gap.Spec
}

// Sequencer alternates between playing a random pool track and a silence gap.
// Every transition goes through the mutex.
type Sequencer struct {
	mu sync.Mutex

	pool   Pool
	store  Store
	player player.Player
	config Config
	rng    *rand.Rand
	gap    gap.Spec

	// Current phase state
	phase     Phase
	gen       uint64 // identifies the active playback; stale callbacks carry an older value
	current   *track.Track
	lastName  string          // most recently played track, excluded from the next pick
	pending   *media.Resource // ephemeral gap resource awaiting release
	startTime time.Time
	planned   time.Duration
	remaining time.Duration // maintained by the progress loop

	progressCancel func()

	// Events
	eventCh    chan Event
	progressCh chan Event // holds only the latest unread progress event
	closed     bool

	// Context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSequencer creates an idle sequencer.
func NewSequencer(pool Pool, store Store, p player.Player, config Config) *Sequencer {
	if config.FrameRate <= 0 {
		config.FrameRate = 10
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	rng := config.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		pool:    pool,
		store:   store,
		player:  p,
		config:  config,
		rng:     rng,
		gap:     config.Gap,
		phase:   PhaseIdle,
		eventCh:    make(chan Event, config.EventBuffer),
		progressCh: make(chan Event, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Events returns the phase-change channel. Gap progress is delivered on
// Progress so a burst of ticks cannot push phase changes out of the buffer.
func (s *Sequencer) Events() <-chan Event {
	return s.eventCh
}

// Progress returns the gap countdown channel. An unread event is replaced by
// the next one.
func (s *Sequencer) Progress() <-chan Event {
	return s.progressCh
}

// Start begins playback with a random track. It is a no-op while running.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return nil
	}
	return s.playTrackLocked(ctx)
}

// Skip abandons the current phase and moves to the other one immediately.
func (s *Sequencer) Skip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		return ErrNotRunning
	}

	from, to := s.phase, PhasePlayingTrack
	if from == PhasePlayingTrack {
		to = PhasePlayingGap
	}
	s.sendEventLocked(Event{
		Type:  EventSkipped,
		Phase: to,
		From:  from,
		Track: s.current,
	})
	zlog.Debug().Msgf("playback: skip requested: phase=%s", from)

	return s.advanceLocked(ctx)
}

// Stop halts playback and returns to idle. It is idempotent.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		s.stopLocked()
		return
	}
	s.stopLocked()
	s.sendEventLocked(Event{Type: EventStopped, Phase: s.phase})
}

// ForgetLast clears the last-played track so the next pick is unrestricted.
func (s *Sequencer) ForgetLast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastName = ""
}

// SetGap replaces the gap bounds used for the next gap.
func (s *Sequencer) SetGap(g gap.Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gap = g
}

// Gap returns the configured gap bounds.
func (s *Sequencer) Gap() gap.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gap
}

// Phase returns the current phase.
func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// PendingEphemeral reports whether a gap resource is awaiting release.
func (s *Sequencer) PendingEphemeral() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Snapshot returns the current state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:   s.phase,
		Running: s.phase != PhaseIdle,
		Planned: s.planned,
		Gap:     s.gap,
	}
	if s.current != nil {
		t := *s.current
		snap.Track = &t
	}
	if snap.Running {
		snap.Elapsed = time.Since(s.startTime)
	}

	switch s.phase {
	case PhasePlayingGap:
		snap.Remaining = s.remaining
	case PhasePlayingTrack:
		if s.planned > snap.Elapsed {
			snap.Remaining = s.planned - snap.Elapsed
		}
	}
	return snap
}

// Close stops playback and closes the event channel.
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.stopLocked()
	if !s.closed {
		s.closed = true
		close(s.eventCh)
		close(s.progressCh)
	}
	s.mu.Unlock()

	s.cancel()
}

// onEnded handles natural completion of the playback identified by gen.
func (s *Sequencer) onEnded(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.phase == PhaseIdle {
		return
	}
	zlog.Debug().Msgf("playback: phase ended: phase=%s elapsed=%v", s.phase, time.Since(s.startTime))

	if err := s.advanceLocked(s.ctx); err != nil {
		zlog.Warn().Msgf("playback: could not continue after %s: %v", s.phase, err)
	}
}

// advanceLocked moves to the phase that follows the current one.
// Must be called with lock held.
func (s *Sequencer) advanceLocked(ctx context.Context) error {
	switch s.phase {
	case PhasePlayingTrack:
		return s.playGapLocked(ctx)
	case PhasePlayingGap:
		return s.playTrackLocked(ctx)
	default:
		return ErrNotRunning
	}
}

// playTrackLocked picks a random track and plays it.
// Must be called with lock held.
func (s *Sequencer) playTrackLocked(ctx context.Context) error {
	tracks := s.pool.Tracks()
	if len(tracks) == 0 {
		if s.phase != PhaseIdle {
			s.stopLocked()
			s.sendEventLocked(Event{Type: EventStopped, Phase: s.phase})
		}
		return ErrPoolEmpty
	}

	t := tracks[pickIndex(s.rng, tracks, s.lastName)]
	res, err := s.store.Open(t.Handle)
	if err != nil {
		return s.rejectLocked(err, fmt.Sprintf("failed to open track %q", t.Name))
	}

	gen := s.beginLocked()
	if err := s.player.SetSource(res, s.endedFunc(gen)); err != nil {
		return s.rejectLocked(err, fmt.Sprintf("failed to load track %q", t.Name))
	}
	if err := s.player.Play(ctx); err != nil {
		return s.rejectLocked(err, fmt.Sprintf("failed to play track %q", t.Name))
	}

	s.phase = PhasePlayingTrack
	s.current = &t
	s.lastName = t.Name
	s.startTime = time.Now()
	s.planned = t.Duration
	s.remaining = 0

	zlog.Debug().Msgf("playback: track started: name=%s duration=%v", t.Name, t.Duration)
	s.sendEventLocked(Event{
		Type:  EventTrackStarted,
		Phase: s.phase,
		Track: s.current,
	})
	return nil
}

// playGapLocked draws a gap duration, synthesizes the silence and plays it.
// Must be called with lock held.
func (s *Sequencer) playGapLocked(ctx context.Context) error {
	seconds := s.gap.Draw(s.rng.Float64())
	planned := silence.Duration(seconds)

	gen := s.beginLocked()
	res := s.store.Create("silence.wav", silence.MIMEType, silence.Generate(seconds), planned, true)
	s.pending = &res

	if err := s.player.SetSource(res, s.endedFunc(gen)); err != nil {
		return s.rejectLocked(err, "failed to load gap")
	}
	if err := s.player.Play(ctx); err != nil {
		return s.rejectLocked(err, "failed to play gap")
	}

	s.phase = PhasePlayingGap
	s.current = nil
	s.startTime = time.Now()
	s.planned = planned
	s.remaining = planned
	s.startProgressLocked(gen)

	zlog.Debug().Msgf("playback: gap started: duration=%v", planned)
	s.sendEventLocked(Event{
		Type:      EventGapStarted,
		Phase:     s.phase,
		Gap:       planned,
		Remaining: planned,
	})
	return nil
}

// beginLocked invalidates the previous playback before a new one starts:
// the progress loop is cancelled and the pending gap resource released.
// Must be called with lock held.
func (s *Sequencer) beginLocked() uint64 {
	s.cancelProgressLocked()
	s.releasePendingLocked()
	s.gen++
	return s.gen
}

// stopLocked returns the sequencer to idle and resets progress.
// Must be called with lock held.
func (s *Sequencer) stopLocked() {
	s.cancelProgressLocked()
	s.gen++
	s.player.Pause()
	s.releasePendingLocked()

	s.phase = PhaseIdle
	s.current = nil
	s.startTime = time.Time{}
	s.planned = 0
	s.remaining = 0
}

// rejectLocked stops playback after a backend failure and reports it.
// Must be called with lock held.
func (s *Sequencer) rejectLocked(cause error, msg string) error {
	err := player.Reject(cause, msg)
	s.stopLocked()
	zlog.Warn().Msgf("playback: %v", err)
	s.sendEventLocked(Event{
		Type:  EventPlaybackRejected,
		Phase: s.phase,
		Err:   err,
	})
	return err
}

func (s *Sequencer) releasePendingLocked() {
	if s.pending == nil {
		return
	}
	if err := s.store.Release(s.pending.Handle); err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to release gap resource")
	}
	s.pending = nil
}

func (s *Sequencer) endedFunc(gen uint64) func() {
	return func() {
		s.onEnded(gen)
	}
}

// startProgressLocked recomputes the remaining gap time at the configured
// frame rate until it reaches zero or the gap is no longer current.
// Must be called with lock held.
func (s *Sequencer) startProgressLocked(gen uint64) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.progressCancel = cancel
	limiter := rate.NewLimiter(rate.Limit(s.config.FrameRate), 1)

	go func() {
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if !s.tick(gen) {
				return
			}
		}
	}()
}

// tick updates the remaining gap time. It returns false when the loop should end.
func (s *Sequencer) tick(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.phase != PhasePlayingGap {
		return false
	}

	remaining := s.planned - time.Since(s.startTime)
	if remaining < 0 {
		remaining = 0
	}
	s.remaining = remaining
	s.sendProgressLocked(Event{
		Type:      EventGapProgress,
		Phase:     s.phase,
		Gap:       s.planned,
		Remaining: remaining,
	})
	return remaining > 0
}

func (s *Sequencer) cancelProgressLocked() {
	if s.progressCancel != nil {
		s.progressCancel()
		s.progressCancel = nil
	}
}

// sendProgressLocked replaces any unread progress event with e.
// Must be called with lock held.
func (s *Sequencer) sendProgressLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case <-s.progressCh:
	default:
	}
	select {
	case s.progressCh <- e:
	default:
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Sequencer) sendEventLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.eventCh <- e:
	case <-s.ctx.Done():
	default:
		// Channel full, drop event
	}
}
