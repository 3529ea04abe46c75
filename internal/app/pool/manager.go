// Package pool manages the set of registered tracks and the resource handles they own.
package pool

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/media"
)

// ErrTrackNotFound is returned when no track has the given name.
var ErrTrackNotFound = errors.New("track not found")

// Store mints and revokes resource handles.
type Store interface {
	Create(name, mimeType string, data []byte, d time.Duration, ephemeral bool) media.Resource
	Release(handle string) error
}

// Manager holds the ordered, name-unique pool of tracks.
type Manager struct {
	mu     sync.RWMutex
	store  Store
	tracks []track.Track
	names  map[string]struct{}

	onClear func()
}

// NewManager creates an empty pool backed by store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:  store,
		tracks: make([]track.Track, 0),
		names:  make(map[string]struct{}),
	}
}

// OnClear sets the hook run before the pool is cleared.
// The playback sequencer uses it to stop.
func (m *Manager) OnClear(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClear = fn
}

// Register adds files to the pool in input order and returns the accepted tracks.
// Files whose name is already present are silently skipped.
func (m *Manager) Register(files []track.RawFile) []track.Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	accepted := make([]track.Track, 0, len(files))
	for _, f := range files {
		if _, exists := m.names[f.Name]; exists {
			zlog.Debug().Msgf("pool: ignoring duplicate track: name=%s", f.Name)
			continue
		}

		res := m.store.Create(f.Name, "", f.Data, f.Duration, false)
		t := track.Track{
			Name:     f.Name,
			Handle:   res.Handle,
			Title:    f.Title,
			Artist:   f.Artist,
			Album:    f.Album,
			Duration: f.Duration,
			AddedAt:  time.Now(),
		}
		m.tracks = append(m.tracks, t)
		m.names[f.Name] = struct{}{}
		accepted = append(accepted, t)
	}

	if len(accepted) > 0 {
		zlog.Info().Msgf("pool: registered %d track(s), pool size=%d", len(accepted), len(m.tracks))
	}
	return accepted
}

// Remove releases a single track.
func (m *Manager) Remove(name string) (track.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, t := range m.tracks {
		if t.Name != name {
			continue
		}
		m.tracks = append(m.tracks[:i:i], m.tracks[i+1:]...)
		delete(m.names, name)
		m.release(t)
		zlog.Info().Msgf("pool: removed track: name=%s", name)
		return t, nil
	}
	return track.Track{}, errors.Wrapf(ErrTrackNotFound, "remove %q", name)
}

// Clear stops playback through the OnClear hook, then releases every track.
// It returns the number of tracks removed.
func (m *Manager) Clear() int {
	m.mu.RLock()
	hook := m.onClear
	m.mu.RUnlock()

	// run the hook unlocked: the sequencer reads the pool while holding its own lock
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.releaseAllLocked()
	zlog.Info().Msgf("pool: cleared %d track(s)", n)
	return n
}

// Close releases every track without running the clear hook.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseAllLocked()
}

// Tracks returns a copy of the pool in insertion order.
func (m *Manager) Tracks() []track.Track {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]track.Track, len(m.tracks))
	copy(result, m.tracks)
	return result
}

// Get returns the track with the given name.
func (m *Manager) Get(name string) (track.Track, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tracks {
		if t.Name == name {
			return t, true
		}
	}
	return track.Track{}, false
}

// Len returns the pool size.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracks)
}

// TotalDuration returns the sum of known track durations.
func (m *Manager) TotalDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total time.Duration
	for _, t := range m.tracks {
		total += t.Duration
	}
	return total
}

func (m *Manager) releaseAllLocked() int {
	n := len(m.tracks)
	for _, t := range m.tracks {
		m.release(t)
	}
	m.tracks = make([]track.Track, 0)
	m.names = make(map[string]struct{})
	return n
}

func (m *Manager) release(t track.Track) {
	if err := m.store.Release(t.Handle); err != nil {
		zlog.Warn().Err(err).Msgf("pool: failed to release track: name=%s", t.Name)
	}
}
