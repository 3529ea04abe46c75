// Package session provides the session manager.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/app/filter"
	"github.com/osa030/gapbox/internal/app/notification"
	"github.com/osa030/gapbox/internal/app/playback"
	"github.com/osa030/gapbox/internal/app/pool"
	"github.com/osa030/gapbox/internal/domain/gap"
	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/config"
	"github.com/osa030/gapbox/internal/infra/library"
	"github.com/osa030/gapbox/internal/infra/media"
	"github.com/osa030/gapbox/internal/infra/player"
)

var (
	// ErrUnknownAction is returned for a media action the session does not handle.
	ErrUnknownAction = errors.New("unknown media action")
	// ErrFileRejected marks a file refused by an admission filter.
	ErrFileRejected = errors.New("file rejected")
)

// Media actions accepted by MediaAction.
const (
	ActionPlay          = "play"
	ActionPause         = "pause"
	ActionNextTrack     = "nexttrack"
	ActionPreviousTrack = "previoustrack"
)

// Status represents the current session status.
type Status struct {
	Phase        playback.Phase
	Running      bool
	Track        *track.Track
	Planned      time.Duration
	Elapsed      time.Duration
	Remaining    time.Duration
	Gap          gap.Spec
	PoolSize     int
	PoolDuration time.Duration
	Subscribers  int
}

// Manager wires the pool, the sequencer and the notification fan-out.
type Manager struct {
	mu sync.Mutex

	// Components
	store        *media.Store
	pool         *pool.Manager
	playback     *playback.Sequencer
	player       player.Player
	filters      *filter.Chain
	notification *notification.Manager

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a session manager playing through p.
func NewManager(cfg *config.Config, p player.Player) (*Manager, error) {
	chain, err := filter.NewChainFromConfig(cfg.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build filter chain")
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := media.NewStore()
	m := &Manager{
		store:        store,
		pool:         pool.NewManager(store),
		player:       p,
		filters:      chain,
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	m.playback = playback.NewSequencer(m.pool, store, p, playback.Config{
		Gap: gap.Spec{
			MinSeconds: cfg.Playback.GapMinSeconds,
			MaxSeconds: cfg.Playback.GapMaxSeconds,
		},
		FrameRate:   cfg.Playback.FrameRate,
		EventBuffer: cfg.Playback.EventBuffer,
	})

	// Clearing the pool stops playback and forgets the exclusion
	m.pool.OnClear(func() {
		m.playback.Stop()
		m.playback.ForgetLast()
	})

	go m.playbackLoop()
	return m, nil
}

// AddPaths loads audio files from disk and registers them.
func (m *Manager) AddPaths(paths []string) ([]track.Track, []error) {
	files, errs := library.Load(paths)
	for _, err := range errs {
		zlog.Warn().Msgf("session: %v", err)
	}
	accepted, rejected := m.Register(files)
	return accepted, append(errs, rejected...)
}

// Register screens raw files through the filter chain and adds the survivors
// to the pool. Duplicate names are skipped silently; filtered files come back
// as errors marked with ErrFileRejected.
func (m *Manager) Register(files []track.RawFile) ([]track.Track, []error) {
	admitted, rejections := m.filters.Admit(m.ctx, files)
	var errs []error
	for _, r := range rejections {
		errs = append(errs, errors.Wrapf(ErrFileRejected, "%s: %s", r.Name, r.Code))
	}

	accepted := m.pool.Register(admitted)
	if len(accepted) > 0 {
		m.broadcast(notification.TypePoolChanged, nil)
	}
	return accepted, errs
}

// Clear stops playback and empties the pool.
func (m *Manager) Clear() int {
	m.mu.Lock()
	n := m.pool.Clear()
	m.mu.Unlock()

	m.broadcast(notification.TypePoolChanged, nil)
	return n
}

// Remove removes a single track. A track that is playing is skipped first.
func (m *Manager) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	snap := m.playback.Snapshot()
	if snap.Phase == playback.PhasePlayingTrack && snap.Track != nil && snap.Track.Name == name {
		zlog.Info().Msgf("session: removing the playing track, skipping first: name=%s", name)
		if err := m.playback.Skip(ctx); err != nil {
			zlog.Warn().Msgf("session: skip before remove: %v", err)
		}
	}
	_, err := m.pool.Remove(name)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.broadcast(notification.TypePoolChanged, nil)
	return nil
}

// Start begins shuffle playback.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playback.Start(ctx)
}

// Stop halts playback.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playback.Stop()
}

// Skip moves to the next phase immediately.
func (m *Manager) Skip(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playback.Skip(ctx)
}

// SetGap replaces the gap bounds used from the next gap on.
func (m *Manager) SetGap(g gap.Spec) {
	m.playback.SetGap(g)
	lo, hi := g.Bounds()
	zlog.Info().Msgf("session: gap bounds set: min=%.2fs max=%.2fs", lo, hi)
	m.broadcast(notification.TypeGapChanged, nil)
}

// MediaAction maps a media-control action onto the sequencer.
// There is no paused phase, so pause stops playback.
func (m *Manager) MediaAction(ctx context.Context, action string) error {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionPlay:
		return m.Start(ctx)
	case ActionPause:
		m.Stop()
		return nil
	case ActionNextTrack, ActionPreviousTrack:
		return m.Skip(ctx)
	default:
		return errors.Wrapf(ErrUnknownAction, "%q", action)
	}
}

// Status returns the current session status.
func (m *Manager) Status() *Status {
	snap := m.playback.Snapshot()
	return &Status{
		Phase:        snap.Phase,
		Running:      snap.Running,
		Track:        snap.Track,
		Planned:      snap.Planned,
		Elapsed:      snap.Elapsed,
		Remaining:    snap.Remaining,
		Gap:          snap.Gap,
		PoolSize:     m.pool.Len(),
		PoolDuration: m.pool.TotalDuration(),
		Subscribers:  m.notification.SubscriberCount(),
	}
}

// Tracks returns the pool in insertion order.
func (m *Manager) Tracks() []track.Track {
	return m.pool.Tracks()
}

// Store returns the media store serving resource bytes.
func (m *Manager) Store() *media.Store {
	return m.store
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// CurrentNotification builds an unsequenced notification describing the present state.
func (m *Manager) CurrentNotification() *notification.Notification {
	return m.buildNotification(notification.TypeInitialState, nil)
}

// Done is closed when the session manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Close stops playback and releases every resource.
func (m *Manager) Close() {
	m.cancel()
	m.playback.Close()
	<-m.done
	m.pool.Close()
	m.store.ReleaseAll()
	if err := m.player.Close(); err != nil {
		zlog.Warn().Msgf("session: failed to close player: %v", err)
	}
	m.notification.Close()
}

// playbackLoop handles sequencer events and gap countdown updates.
func (m *Manager) playbackLoop() {
	defer close(m.done)

	progress := m.playback.Progress()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.playback.Events():
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		case event, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			// the gap may have ended while the update waited
			if m.playback.Phase() != playback.PhasePlayingGap {
				continue
			}
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent logs an event and broadcasts it.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	switch event.Type {
	case playback.EventTrackStarted:
		zlog.Info().Msgf("now playing: %s", event.Track.Label())
		m.broadcast(notification.TypeTrackStarted, &event)
	case playback.EventGapStarted:
		zlog.Info().Msgf("gap: %.1fs of silence", event.Gap.Seconds())
		m.broadcast(notification.TypeGapStarted, &event)
	case playback.EventGapProgress:
		m.broadcast(notification.TypeGapProgress, &event)
	case playback.EventSkipped:
		zlog.Info().Msgf("skipped: from=%s to=%s", event.From, event.Phase)
		m.broadcast(notification.TypeSkipped, &event)
	case playback.EventStopped:
		zlog.Info().Msg("playback stopped")
		m.broadcast(notification.TypeStopped, &event)
	case playback.EventPlaybackRejected:
		zlog.Error().Msgf("playback rejected: %v", event.Err)
		m.broadcast(notification.TypePlaybackRejected, &event)
	}
}

func (m *Manager) broadcast(t notification.Type, event *playback.Event) {
	m.notification.Broadcast(m.buildNotification(t, event))
}

// buildNotification describes the current state; event fields take precedence
// so each notification reflects the moment it was raised.
func (m *Manager) buildNotification(t notification.Type, event *playback.Event) *notification.Notification {
	snap := m.playback.Snapshot()
	lo, hi := snap.Gap.Bounds()

	n := &notification.Notification{
		Type:          t,
		Time:          time.Now(),
		Phase:         snap.Phase.String(),
		Running:       snap.Running,
		GapMinSeconds: lo,
		GapMaxSeconds: hi,
		PoolSize:      m.pool.Len(),
		Track:         trackInfo(snap.Track),
	}
	if snap.Phase == playback.PhasePlayingGap {
		n.GapSeconds = snap.Planned.Seconds()
	}
	n.RemainingSeconds = snap.Remaining.Seconds()

	if event != nil {
		n.Phase = event.Phase.String()
		n.Running = event.Phase != playback.PhaseIdle
		switch event.Type {
		case playback.EventTrackStarted:
			n.Track = trackInfo(event.Track)
			n.GapSeconds = 0
			n.RemainingSeconds = event.Track.Duration.Seconds()
		case playback.EventGapStarted, playback.EventGapProgress:
			n.Track = nil
			n.GapSeconds = event.Gap.Seconds()
			n.RemainingSeconds = event.Remaining.Seconds()
		case playback.EventSkipped:
			n.Track = trackInfo(event.Track)
			n.SkippedPhase = event.From.String()
		case playback.EventStopped, playback.EventPlaybackRejected:
			n.Track = nil
			n.GapSeconds = 0
			n.RemainingSeconds = 0
		}
		if event.Err != nil {
			n.Error = event.Err.Error()
		}
	}
	return n
}

func trackInfo(t *track.Track) *notification.TrackInfo {
	if t == nil {
		return nil
	}
	return &notification.TrackInfo{
		Name:            t.Name,
		Label:           t.Label(),
		Title:           t.Title,
		Artist:          t.Artist,
		Album:           t.Album,
		Handle:          t.Handle,
		DurationSeconds: t.Duration.Seconds(),
	}
}
