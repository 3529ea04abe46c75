package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/app/notification"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var errSlowClient = errors.New("websocket client too slow")

// client is a WebSocket subscriber fed by the notification manager.
type client struct {
	conn    *websocket.Conn
	notif   *notification.Manager
	send    chan []byte
	id      string
	closeMu sync.Mutex
	closed  bool
}

func newClient(conn *websocket.Conn, notif *notification.Manager) *client {
	return &client{
		conn:  conn,
		notif: notif,
		send:  make(chan []byte, sendBuffer),
	}
}

func (c *client) attach() {
	c.id = c.notif.Subscribe(c)
}

// Send queues a notification. A full queue drops the client.
func (c *client) Send(n *notification.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errSlowClient
	}
}

func (c *client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump discards inbound messages and detaches the client when the peer goes away.
func (c *client) readPump() {
	defer func() {
		c.notif.Unsubscribe(c.id)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Debug().Msgf("web: ws read: %v", err)
			}
			return
		}
	}
}

// writePump writes queued notifications and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
