package playback

import (
	"time"

	"github.com/osa030/gapbox/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted     EventType = iota // Track started playing
	EventGapStarted                        // Silence gap started playing
	EventSkipped                           // Current phase was skipped
	EventStopped                           // Playback stopped
	EventPlaybackRejected                  // Backend refused to play, sequencer is idle
	EventGapProgress                       // Remaining gap time recomputed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventGapStarted:
		return "gap_started"
	case EventSkipped:
		return "skipped"
	case EventStopped:
		return "stopped"
	case EventPlaybackRejected:
		return "playback_rejected"
	case EventGapProgress:
		return "gap_progress"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	Phase     Phase         // Phase after the event
	From      Phase         // Phase that was left (EventSkipped)
	Track     *track.Track  // Current track, or the skipped one for EventSkipped
	Gap       time.Duration // Planned gap length (gap events)
	Remaining time.Duration // Remaining gap time (gap events)
	Err       error         // Rejection cause
}
