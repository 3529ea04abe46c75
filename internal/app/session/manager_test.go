package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/gapbox/internal/app/notification"
	"github.com/osa030/gapbox/internal/app/playback"
	"github.com/osa030/gapbox/internal/app/pool"
	"github.com/osa030/gapbox/internal/domain/gap"
	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/config"
	"github.com/osa030/gapbox/internal/infra/player/clock"
	"github.com/osa030/gapbox/internal/infra/silence"
)

// stalledStream never completes a send until released.
type stalledStream struct {
	release chan struct{}
}

func (s *stalledStream) Send(*notification.Notification) error {
	<-s.release
	return nil
}

type recordingStream struct {
	mu  sync.Mutex
	got []*notification.Notification
}

func (s *recordingStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *recordingStream) types() []notification.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Type, len(s.got))
	for i, n := range s.got {
		out[i] = n.Type
	}
	return out
}

func (s *recordingStream) last(t notification.Type) *notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.got) - 1; i >= 0; i-- {
		if s.got[i].Type == t {
			return s.got[i]
		}
	}
	return nil
}

func newTestManager(t *testing.T, opts ...func(*config.Config)) *Manager {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Filters = map[string]config.FilterConfig{
		"empty_file_filter":    {Enabled: true},
		"excluded_name_filter": {Enabled: true},
	}

	m, err := NewManager(cfg, clock.New(clock.Settings{DefaultTrackSeconds: 180, PollIntervalMs: 20}))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func rawFiles(names ...string) []track.RawFile {
	files := make([]track.RawFile, len(names))
	for i, n := range names {
		files[i] = track.RawFile{Name: n, Data: []byte(n), Duration: time.Minute}
	}
	return files
}

func TestManager_MediaAction(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.MediaAction(ctx, ActionPlay)
	assert.True(t, errors.Is(err, playback.ErrPoolEmpty))

	m.Register(rawFiles("a.mp3", "b.mp3"))

	require.NoError(t, m.MediaAction(ctx, ActionPlay))
	assert.Equal(t, playback.PhasePlayingTrack, m.Status().Phase)

	require.NoError(t, m.MediaAction(ctx, ActionNextTrack))
	assert.Equal(t, playback.PhasePlayingGap, m.Status().Phase)

	require.NoError(t, m.MediaAction(ctx, " PreviousTrack "))
	assert.Equal(t, playback.PhasePlayingTrack, m.Status().Phase)

	require.NoError(t, m.MediaAction(ctx, ActionPause))
	assert.Equal(t, playback.PhaseIdle, m.Status().Phase)

	err = m.MediaAction(ctx, ActionNextTrack)
	assert.True(t, errors.Is(err, playback.ErrNotRunning))

	err = m.MediaAction(ctx, "seekforward")
	assert.True(t, errors.Is(err, ErrUnknownAction))
}

func TestManager_RegisterSkipsDuplicates(t *testing.T) {
	m := newTestManager(t)

	first, errs := m.Register(rawFiles("a.mp3", "b.mp3"))
	assert.Empty(t, errs)
	second, errs := m.Register(rawFiles("b.mp3", "c.mp3", "c.mp3"))
	assert.Empty(t, errs)

	assert.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.Equal(t, "c.mp3", second[0].Name)

	names := []string{}
	for _, tr := range m.Tracks() {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []string{"a.mp3", "b.mp3", "c.mp3"}, names)
	assert.Equal(t, 3, m.Store().Len())
}

func TestManager_RegisterAppliesFilters(t *testing.T) {
	m := newTestManager(t)

	added, errs := m.Register([]track.RawFile{
		{Name: "a.mp3", Data: []byte("a")},
		{Name: "empty.mp3"},
		{Name: "._a.mp3", Data: []byte("fork")},
	})

	require.Len(t, added, 1)
	assert.Equal(t, "a.mp3", added[0].Name)
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrFileRejected))
	}
	assert.Contains(t, errs[0].Error(), "empty.mp3: empty_file")
	assert.Contains(t, errs[1].Error(), "._a.mp3: excluded_name")
	assert.Equal(t, 1, m.Store().Len())
}

func TestNewManager_UnknownFilter(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Filters = map[string]config.FilterConfig{"missing_filter": {Enabled: true}}

	_, err = NewManager(cfg, clock.New(clock.Settings{}))
	assert.Error(t, err)
}

func TestManager_RemovePlayingTrackSkipsFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.Register(rawFiles("a.mp3", "b.mp3"))
	require.NoError(t, m.Start(ctx))

	playing := m.Status().Track
	require.NotNil(t, playing)

	require.NoError(t, m.Remove(ctx, playing.Name))

	st := m.Status()
	assert.Equal(t, playback.PhasePlayingGap, st.Phase)
	assert.Equal(t, 1, st.PoolSize)
	_, err := m.Store().Open(playing.Handle)
	assert.Error(t, err, "handle revoked on removal")

	err = m.Remove(ctx, "missing.mp3")
	assert.True(t, errors.Is(err, pool.ErrTrackNotFound))
}

func TestManager_ClearStopsPlayback(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.Register(rawFiles("a.mp3", "b.mp3"))
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Skip(ctx))
	require.Equal(t, playback.PhasePlayingGap, m.Status().Phase)

	assert.Equal(t, 2, m.Clear())

	st := m.Status()
	assert.Equal(t, playback.PhaseIdle, st.Phase)
	assert.Zero(t, st.PoolSize)
	assert.Zero(t, st.Remaining)
	assert.Equal(t, 0, m.Store().Len(), "no track or gap resource survives a clear")

	assert.True(t, errors.Is(m.Start(ctx), playback.ErrPoolEmpty))
}

func TestManager_SetGap(t *testing.T) {
	m := newTestManager(t)
	m.SetGap(gap.Spec{MinSeconds: 1, MaxSeconds: 2})
	assert.Equal(t, gap.Spec{MinSeconds: 1, MaxSeconds: 2}, m.Status().Gap)

	m.Register(rawFiles("a.mp3"))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Skip(ctx))

	st := m.Status()
	assert.GreaterOrEqual(t, st.Planned, time.Second)
	assert.LessOrEqual(t, st.Planned, 2*time.Second)
}

func TestManager_BroadcastsPlaybackEvents(t *testing.T) {
	m := newTestManager(t)
	s := &recordingStream{}
	m.GetNotificationManager().Subscribe(s)

	ctx := context.Background()
	m.Register([]track.RawFile{{Name: "a.mp3", Data: []byte("a"), Title: "Song", Artist: "Band", Duration: time.Minute}})
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Skip(ctx))
	m.Stop()

	assert.Eventually(t, func() bool {
		return s.last(notification.TypeStopped) != nil
	}, 2*time.Second, 10*time.Millisecond)

	started := s.last(notification.TypeTrackStarted)
	require.NotNil(t, started)
	require.NotNil(t, started.Track)
	assert.Equal(t, "Band - Song", started.Track.Label)
	assert.Equal(t, playback.PhasePlayingTrack.String(), started.Phase)

	gapStarted := s.last(notification.TypeGapStarted)
	require.NotNil(t, gapStarted)
	assert.Nil(t, gapStarted.Track)
	assert.GreaterOrEqual(t, gapStarted.GapSeconds, 3.0)
	assert.LessOrEqual(t, gapStarted.GapSeconds, 10.0)

	stopped := s.last(notification.TypeStopped)
	assert.False(t, stopped.Running)
	assert.Zero(t, stopped.RemainingSeconds)

	types := s.types()
	assert.Equal(t, notification.TypePoolChanged, types[0])
	assert.Contains(t, types, notification.TypeSkipped)
}

func TestManager_AddPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.wav"), silence.Generate(0.25), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.wav"), silence.Generate(0.5), 0o644))

	m := newTestManager(t)
	added, errs := m.AddPaths([]string{dir, filepath.Join(dir, "nope.wav")})

	assert.Len(t, errs, 1)
	require.Len(t, added, 2)
	assert.Equal(t, 250*time.Millisecond, added[0].Duration)

	st := m.Status()
	assert.Equal(t, 2, st.PoolSize)
	assert.Equal(t, 750*time.Millisecond, st.PoolDuration)
}

func TestManager_StalledSubscriberDoesNotStarveOthers(t *testing.T) {
	m := newTestManager(t, func(cfg *config.Config) {
		cfg.Playback.FrameRate = 120
		cfg.Playback.GapMinSeconds = 30
		cfg.Playback.GapMaxSeconds = 30
	})
	stalled := &stalledStream{release: make(chan struct{})}
	t.Cleanup(func() { close(stalled.release) })

	notifications := m.GetNotificationManager()
	notifications.Subscribe(stalled)
	healthy := &recordingStream{}
	notifications.Subscribe(healthy)

	ctx := context.Background()
	m.Register(rawFiles("a.mp3", "b.mp3"))
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Skip(ctx))
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, m.Skip(ctx))
	m.Stop()

	assert.Eventually(t, func() bool {
		types := healthy.types()
		return len(types) > 0 && types[len(types)-1] == notification.TypeStopped
	}, 5*time.Second, 20*time.Millisecond)

	var tracks, gaps, skips int
	for _, typ := range healthy.types() {
		switch typ {
		case notification.TypeTrackStarted:
			tracks++
		case notification.TypeGapStarted:
			gaps++
		case notification.TypeSkipped:
			skips++
		}
	}
	assert.Equal(t, 2, tracks)
	assert.Equal(t, 1, gaps)
	assert.Equal(t, 2, skips)
	assert.Equal(t, 1, notifications.SubscriberCount(), "stalled subscriber is dropped")
}

func TestManager_SkippedNotificationNamesBothPhases(t *testing.T) {
	m := newTestManager(t)
	s := &recordingStream{}
	m.GetNotificationManager().Subscribe(s)

	ctx := context.Background()
	m.Register(rawFiles("a.mp3", "b.mp3"))
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Skip(ctx))

	assert.Eventually(t, func() bool {
		return s.last(notification.TypeSkipped) != nil
	}, 2*time.Second, 10*time.Millisecond)

	skipped := s.last(notification.TypeSkipped)
	assert.Equal(t, playback.PhasePlayingGap.String(), skipped.Phase)
	assert.Equal(t, playback.PhasePlayingTrack.String(), skipped.SkippedPhase)
	require.NotNil(t, skipped.Track)
}

func TestManager_ClearAndStartDoNotInterleave(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		m.Register(rawFiles("a.mp3", "b.mp3"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			m.Clear()
		}()
		wg.Wait()

		// Start either ran first and was stopped by Clear, or found the pool empty
		require.Equal(t, playback.PhaseIdle, m.Status().Phase, "iteration %d", i)
		require.Zero(t, m.Store().Len(), "iteration %d", i)
	}
}
