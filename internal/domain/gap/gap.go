// Package gap provides the silence gap configuration entity.
package gap

import (
	"math"
	"time"
)

// MaxSeconds is the upper clamp for any gap bound.
const MaxSeconds = 3600

// Spec holds the user-configured gap bounds in seconds.
// The bounds may be given in either order.
type Spec struct {
	MinSeconds float64
	MaxSeconds float64
}

// Bounds returns the effective lower and upper bound, ordered and clamped to [0, MaxSeconds].
func (s Spec) Bounds() (lo, hi float64) {
	a, b := Clamp(s.MinSeconds), Clamp(s.MaxSeconds)
	return math.Min(a, b), math.Max(a, b)
}

// Draw returns a duration in seconds uniformly drawn from the effective bounds.
// u must lie in [0, 1].
func (s Spec) Draw(u float64) float64 {
	lo, hi := s.Bounds()
	return lo + Clamp01(u)*(hi-lo)
}

// Clamp clamps seconds to [0, MaxSeconds]. NaN becomes 0.
func Clamp(seconds float64) float64 {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	if seconds > MaxSeconds {
		return MaxSeconds
	}
	return seconds
}

// Clamp01 clamps u to [0, 1].
func Clamp01(u float64) float64 {
	if math.IsNaN(u) || u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

// ToDuration converts seconds to a time.Duration after clamping.
func ToDuration(seconds float64) time.Duration {
	return time.Duration(Clamp(seconds) * float64(time.Second))
}
