package pool

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/media"
)

func files(names ...string) []track.RawFile {
	out := make([]track.RawFile, len(names))
	for i, n := range names {
		out[i] = track.RawFile{Name: n, Data: []byte(n), Duration: time.Second}
	}
	return out
}

func TestManager_RegisterPreservesOrder(t *testing.T) {
	store := media.NewStore()
	m := NewManager(store)

	accepted := m.Register(files("c.mp3", "a.mp3", "b.mp3"))
	require.Len(t, accepted, 3)

	names := make([]string, 0, 3)
	for _, tr := range m.Tracks() {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []string{"c.mp3", "a.mp3", "b.mp3"}, names)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 3*time.Second, m.TotalDuration())
}

func TestManager_RegisterDuplicateIgnored(t *testing.T) {
	store := media.NewStore()
	m := NewManager(store)

	m.Register(files("a.mp3"))
	accepted := m.Register(files("a.mp3"))

	assert.Empty(t, accepted)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, store.Len(), "duplicates must not mint handles")
}

func TestManager_RegisterDuplicateWithinBatch(t *testing.T) {
	m := NewManager(media.NewStore())

	accepted := m.Register(files("a.mp3", "b.mp3", "a.mp3"))
	assert.Len(t, accepted, 2)
	assert.Equal(t, 2, m.Len())
}

func TestManager_HandlesAreValid(t *testing.T) {
	store := media.NewStore()
	m := NewManager(store)
	m.Register(files("a.mp3", "b.mp3"))

	for _, tr := range m.Tracks() {
		res, err := store.Open(tr.Handle)
		require.NoError(t, err)
		assert.Equal(t, tr.Name, res.Name)
		assert.False(t, res.Ephemeral)
	}
}

func TestManager_ClearRunsHookAndReleases(t *testing.T) {
	store := media.NewStore()
	m := NewManager(store)
	m.Register(files("a.mp3", "b.mp3"))
	handles := []string{m.Tracks()[0].Handle, m.Tracks()[1].Handle}

	hookCalls := 0
	poolSizeAtHook := -1
	m.OnClear(func() {
		hookCalls++
		poolSizeAtHook = m.Len()
	})

	assert.Equal(t, 2, m.Clear())
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, 2, poolSizeAtHook, "hook runs before tracks are released")
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, store.Len())

	for _, h := range handles {
		assert.True(t, errors.Is(store.Release(h), media.ErrUnknownHandle), "released exactly once")
	}
}

func TestManager_ClearThenReregister(t *testing.T) {
	m := NewManager(media.NewStore())
	m.Register(files("a.mp3"))
	m.Clear()

	accepted := m.Register(files("a.mp3"))
	assert.Len(t, accepted, 1)
}

func TestManager_Remove(t *testing.T) {
	store := media.NewStore()
	m := NewManager(store)
	m.Register(files("a.mp3", "b.mp3", "c.mp3"))

	removed, err := m.Remove("b.mp3")
	require.NoError(t, err)
	assert.Equal(t, "b.mp3", removed.Name)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, store.Len())

	_, ok := m.Get("b.mp3")
	assert.False(t, ok)
	_, ok = m.Get("c.mp3")
	assert.True(t, ok)

	_, err = m.Remove("b.mp3")
	assert.True(t, errors.Is(err, ErrTrackNotFound))

	// the name can be registered again
	assert.Len(t, m.Register(files("b.mp3")), 1)
}

func TestManager_Close(t *testing.T) {
	store := media.NewStore()
	m := NewManager(store)
	m.Register(files("a.mp3"))

	hookCalled := false
	m.OnClear(func() { hookCalled = true })
	m.Close()

	assert.False(t, hookCalled)
	assert.Equal(t, 0, store.Len())
}
