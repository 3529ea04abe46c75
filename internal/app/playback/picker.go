package playback

import (
	"math/rand/v2"

	"github.com/osa030/gapbox/internal/domain/track"
)

// pickIndex picks a uniformly random index into tracks, excluding the track
// named last when there is more than one track. tracks must not be empty.
func pickIndex(rng *rand.Rand, tracks []track.Track, last string) int {
	n := len(tracks)
	if n == 1 {
		return 0
	}

	excluded := -1
	for i, t := range tracks {
		if t.Name == last {
			excluded = i
			break
		}
	}
	if excluded < 0 {
		return rng.IntN(n)
	}

	i := rng.IntN(n - 1)
	if i >= excluded {
		i++
	}
	return i
}
