// Package playback provides the track/gap playback sequencer.
package playback

// Phase represents what the sequencer is currently doing.
type Phase int

const (
	PhaseIdle         Phase = iota // Nothing playing (initial state and after stop)
	PhasePlayingTrack              // A pool track is playing
	PhasePlayingGap                // A synthesized silence gap is playing
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlayingTrack:
		return "playing_track"
	case PhasePlayingGap:
		return "playing_gap"
	default:
		return "unknown"
	}
}
