package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/gapbox/internal/app/notification"
	"github.com/osa030/gapbox/internal/app/session"
	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/config"
	"github.com/osa030/gapbox/internal/infra/player/clock"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *session.Manager) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)

	sess, err := session.NewManager(cfg, clock.New(clock.Settings{DefaultTrackSeconds: 180, PollIntervalMs: 20}))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(sess, token).Router("/rpc/", nil))
	t.Cleanup(func() {
		srv.Close()
		sess.Close()
	})
	return srv, sess
}

func TestServer_Health(t *testing.T) {
	srv, sess := newTestServer(t, "secret")
	sess.Register([]track.RawFile{{Name: "a.mp3", Data: []byte("x")}})

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["phase"])
	assert.Equal(t, float64(1), body["pool_size"])
}

func TestServer_Media(t *testing.T) {
	srv, sess := newTestServer(t, "")
	added, _ := sess.Register([]track.RawFile{{Name: "a.mp3", Data: []byte("ID3 fake bytes")}})
	require.Len(t, added, 1)
	handle := added[0].Handle

	tests := []struct {
		name string
		path string
	}{
		{name: "full handle", path: "/media/" + handle},
		{name: "bare id", path: "/media/" + strings.TrimPrefix(handle, "blob:")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer res.Body.Close()

			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, "audio/mpeg", res.Header.Get("Content-Type"))
			data, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			assert.Equal(t, "ID3 fake bytes", string(data))
		})
	}

	require.NoError(t, sess.Remove(context.Background(), "a.mp3"))

	res, err := http.Get(srv.URL + "/media/" + handle)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "released handles are gone")
}

func TestServer_TokenRequired(t *testing.T) {
	srv, sess := newTestServer(t, "secret")
	added, _ := sess.Register([]track.RawFile{{Name: "a.wav", Data: []byte("RIFF")}})
	url := srv.URL + "/media/" + added[0].Handle

	res, err := http.Get(url)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set(TokenHeader, "secret")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(url + "?token=secret")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestServer_WebSocketFeed(t *testing.T) {
	srv, sess := newTestServer(t, "")
	sess.Register([]track.RawFile{{Name: "a.mp3", Data: []byte("x")}})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() notification.Notification {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var n notification.Notification
		require.NoError(t, json.Unmarshal(data, &n))
		return n
	}

	first := read()
	assert.Equal(t, notification.TypeInitialState, first.Type)
	assert.Equal(t, 1, first.PoolSize)

	require.Eventually(t, func() bool {
		return sess.GetNotificationManager().SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sess.Start(context.Background()))

	for {
		n := read()
		if n.Type != notification.TypeTrackStarted {
			continue
		}
		require.NotNil(t, n.Track)
		assert.Equal(t, "a.mp3", n.Track.Name)
		assert.True(t, n.Running)
		break
	}

	conn.Close()
	assert.Eventually(t, func() bool {
		return sess.GetNotificationManager().SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
