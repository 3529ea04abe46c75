// Package player provides the media playback primitive used by the sequencer.
package player

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/gapbox/internal/infra/media"
)

// ErrPlaybackRejected is returned when the backend declines to start audio.
var ErrPlaybackRejected = errors.New("playback rejected")

// Player plays one resource at a time.
type Player interface {
	// SetSource loads a resource, discarding whatever was loaded before.
	// onEnded is called once, from a goroutine owned by the player, when the
	// resource finishes playing naturally. It is never called after the next
	// SetSource or Close.
	SetSource(res media.Resource, onEnded func()) error
	// Play starts or resumes the loaded resource.
	// Failures wrap ErrPlaybackRejected.
	Play(ctx context.Context) error
	// Pause halts playback without firing onEnded.
	Pause()
	// Close releases the backend.
	Close() error
}

// Reject wraps err as a rejected playback.
func Reject(err error, msg string) error {
	if err == nil {
		return errors.Wrap(ErrPlaybackRejected, msg)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrPlaybackRejected)
}
