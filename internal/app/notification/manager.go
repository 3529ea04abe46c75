// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Type identifies what a notification reports.
type Type string

const (
	TypeInitialState     Type = "initial_state"
	TypeTrackStarted     Type = "track_started"
	TypeGapStarted       Type = "gap_started"
	TypeGapProgress      Type = "gap_progress"
	TypeSkipped          Type = "skipped"
	TypeStopped          Type = "stopped"
	TypePlaybackRejected Type = "playback_rejected"
	TypePoolChanged      Type = "pool_changed"
	TypeGapChanged       Type = "gap_changed"
)

// TrackInfo describes the current track.
type TrackInfo struct {
	Name            string  `json:"name"`
	Label           string  `json:"label"`
	Title           string  `json:"title,omitempty"`
	Artist          string  `json:"artist,omitempty"`
	Album           string  `json:"album,omitempty"`
	Handle          string  `json:"handle"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Notification is one sequenced message delivered to every subscriber.
type Notification struct {
	SequenceNo       uint64     `json:"sequence_no"`
	Type             Type       `json:"type"`
	Time             time.Time  `json:"time"`
	Phase            string     `json:"phase"`
	SkippedPhase     string     `json:"skipped_phase,omitempty"`
	Running          bool       `json:"running"`
	Track            *TrackInfo `json:"track,omitempty"`
	GapSeconds       float64    `json:"gap_seconds"`
	RemainingSeconds float64    `json:"remaining_seconds"`
	GapMinSeconds    float64    `json:"gap_min_seconds"`
	GapMaxSeconds    float64    `json:"gap_max_seconds"`
	PoolSize         int        `json:"pool_size"`
	Error            string     `json:"error,omitempty"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   500 * time.Millisecond,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	zlog.Debug().Msgf("notification: subscribed: id=%s subscribers=%d", id, len(m.subscriptions))
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the notification with the next sequence number and sends it
// to all subscribers. Sends run in parallel, each bounded by a timeout; a
// subscriber whose send fails or times out is unsubscribed.
func (m *Manager) Broadcast(n *Notification) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed, dropping subscriber: id=%s err=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				// a stream that cannot keep up would stall every later broadcast
				zlog.Warn().Msgf("notification: send timed out, dropping subscriber: id=%s seq=%d", s.id, n.SequenceNo)
				m.Unsubscribe(s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// Send sends a notification to a specific subscriber without sequencing it.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return sub.stream.Send(n)
}

// LastSequenceNo returns the sequence number of the latest broadcast.
func (m *Manager) LastSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	return m.sequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
