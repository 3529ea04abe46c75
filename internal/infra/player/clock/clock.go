// Package clock provides a headless player that plays resources against the wall clock.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/infra/media"
	"github.com/osa030/gapbox/internal/infra/player"
)

// Settings configures the clock player.
type Settings struct {
	DefaultTrackSeconds float64 `yaml:"default_track_seconds" mapstructure:"default_track_seconds" default:"180" validate:"gt=0"`
	PollIntervalMs      int     `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms" default:"20" validate:"gte=1,lte=1000"`
}

// ParseSettings decodes, defaults and validates settings.
func ParseSettings(settings map[string]any) (Settings, error) {
	var s Settings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return s, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return s, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return s, errors.Wrap(err, "validation failed")
	}
	return s, nil
}

// Player fires the ended callback once the resource duration has elapsed.
type Player struct {
	mu sync.Mutex

	settings Settings
	source   *media.Resource
	onEnded  func()

	playing   bool
	startTime time.Time
	elapsed   time.Duration // accumulated before the last pause
	cancel    func()
	gen       uint64 // bumped whenever a pending timer must not fire
	closed    bool
}

var _ player.Player = (*Player)(nil)

// New creates a clock player.
func New(settings Settings) *Player {
	return &Player{settings: settings}
}

// SetSource loads a resource.
func (p *Player) SetSource(res media.Resource, onEnded func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("player closed")
	}
	p.stopTimerLocked()
	p.gen++
	p.source = &res
	p.onEnded = onEnded
	p.playing = false
	p.elapsed = 0
	return nil
}

// Play starts the wall clock for the loaded resource.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return player.Reject(nil, "player closed")
	}
	if p.source == nil {
		return player.Reject(nil, "no source loaded")
	}
	if err := ctx.Err(); err != nil {
		return player.Reject(err, "play interrupted")
	}
	if p.playing {
		return nil
	}

	remaining := p.durationLocked() - p.elapsed
	if remaining < 0 {
		remaining = 0
	}

	p.playing = true
	p.startTime = toWallTime(time.Now())
	onEnded := p.onEnded
	gen := p.gen
	p.cancel = p.startWallClockTimer(remaining, func() {
		p.mu.Lock()
		if !p.playing || p.gen != gen {
			p.mu.Unlock()
			return
		}
		p.playing = false
		p.cancel = nil
		p.source = nil
		p.mu.Unlock()

		if onEnded != nil {
			onEnded()
		}
	})

	zlog.Debug().Msgf("clock: playing %s for %v", p.source.Name, remaining)
	return nil
}

// Pause stops the clock, keeping the elapsed time for a later Play.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return
	}
	p.elapsed += toWallTime(time.Now()).Sub(p.startTime)
	p.playing = false
	p.gen++
	p.stopTimerLocked()
}

// Position returns how far into the current resource playback is.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return p.elapsed + toWallTime(time.Now()).Sub(p.startTime)
	}
	return p.elapsed
}

// Close stops the player.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTimerLocked()
	p.gen++
	p.playing = false
	p.source = nil
	p.closed = true
	return nil
}

func (p *Player) durationLocked() time.Duration {
	if p.source.Duration > 0 || p.source.Ephemeral {
		return p.source.Duration
	}
	return time.Duration(p.settings.DefaultTrackSeconds * float64(time.Second))
}

func (p *Player) stopTimerLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func (p *Player) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	interval := time.Duration(p.settings.PollIntervalMs) * time.Millisecond

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if !toWallTime(time.Now()).Before(endTime) {
				select {
				case <-ctx.Done():
				default:
					callback()
				}
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

func init() {
	player.Register("clock", func(settings map[string]any) (player.Player, error) {
		s, err := ParseSettings(settings)
		if err != nil {
			return nil, err
		}
		return New(s), nil
	})
}
