// Package speaker provides a player that renders resources on the system audio device.
package speaker

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/infra/audio"
	"github.com/osa030/gapbox/internal/infra/media"
	"github.com/osa030/gapbox/internal/infra/player"
)

// Settings configures the speaker player.
type Settings struct {
	SampleRate      int `yaml:"sample_rate" mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs        int `yaml:"buffer_ms" mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
	ResampleQuality int `yaml:"resample_quality" mapstructure:"resample_quality" default:"4" validate:"gte=1,lte=64"`
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

// Player plays decoded resources through the beep speaker.
type Player struct {
	mu sync.Mutex

	settings Settings
	rate     beep.SampleRate

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	onEnded  func()
	gen      uint64
	closed   bool
}

var _ player.Player = (*Player)(nil)

// New initializes the speaker and returns a player.
func New(settings Settings) (*Player, error) {
	rate := beep.SampleRate(settings.SampleRate)
	if err := speaker.Init(rate, rate.N(time.Duration(settings.BufferMs)*time.Millisecond)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	zlog.Info().Msgf("speaker: initialized rate=%d buffer=%dms", settings.SampleRate, settings.BufferMs)
	return &Player{settings: settings, rate: rate}, nil
}

// SetSource decodes a resource and prepares it for playback.
func (p *Player) SetSource(res media.Resource, onEnded func()) error {
	s, f, err := audio.Decode(res.Name, res.Data)
	if err != nil {
		return player.Reject(err, "failed to load source")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = s.Close()
		return errors.New("player closed")
	}
	p.clearLocked()
	p.streamer = s
	p.format = f
	p.onEnded = onEnded
	return nil
}

// Play starts or resumes the loaded source.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return player.Reject(nil, "player closed")
	}
	if p.streamer == nil {
		return player.Reject(nil, "no source loaded")
	}
	if err := ctx.Err(); err != nil {
		return player.Reject(err, "play interrupted")
	}

	if p.ctrl != nil {
		speaker.Lock()
		p.ctrl.Paused = false
		speaker.Unlock()
		return nil
	}

	var s beep.Streamer = p.streamer
	if p.format.SampleRate != p.rate {
		s = beep.Resample(p.settings.ResampleQuality, p.format.SampleRate, p.rate, s)
	}

	gen := p.gen
	onEnded := p.onEnded
	// The callback runs inside the speaker goroutine with the speaker lock held.
	done := beep.Callback(func() {
		go p.finished(gen, onEnded)
	})
	p.ctrl = &beep.Ctrl{Streamer: beep.Seq(s, done)}
	speaker.Play(p.ctrl)
	return nil
}

// Pause halts the speaker output.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return
	}
	speaker.Lock()
	p.ctrl.Paused = true
	speaker.Unlock()
}

// Close clears the speaker and releases the decoder.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearLocked()
	p.closed = true
	speaker.Close()
	return nil
}

func (p *Player) finished(gen uint64, onEnded func()) {
	p.mu.Lock()
	if p.gen != gen || p.closed {
		p.mu.Unlock()
		return
	}
	p.gen++
	p.ctrl = nil
	p.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}

func (p *Player) clearLocked() {
	p.gen++
	if p.ctrl != nil {
		speaker.Clear()
		p.ctrl = nil
	}
	if p.streamer != nil {
		if err := p.streamer.Close(); err != nil {
			zlog.Debug().Msgf("speaker: closing streamer: %v", err)
		}
		p.streamer = nil
	}
	p.onEnded = nil
}

func init() {
	player.Register("speaker", func(settings map[string]any) (player.Player, error) {
		s, err := ParseSettings(settings)
		if err != nil {
			return nil, err
		}
		return New(s)
	})
}
