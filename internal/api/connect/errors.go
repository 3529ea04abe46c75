package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/gapbox/internal/app/playback"
	"github.com/osa030/gapbox/internal/app/pool"
	"github.com/osa030/gapbox/internal/app/session"
	"github.com/osa030/gapbox/internal/infra/media"
	"github.com/osa030/gapbox/internal/infra/player"
)

// toConnectError maps domain errors onto Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	switch {
	case errors.Is(err, playback.ErrPoolEmpty), errors.Is(err, playback.ErrNotRunning):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, player.ErrPlaybackRejected):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, pool.ErrTrackNotFound), errors.Is(err, media.ErrUnknownHandle):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, session.ErrUnknownAction):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
