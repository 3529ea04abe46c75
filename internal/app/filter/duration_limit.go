package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/domain/track"
)

const codeDurationLimit = "duration_limit_exceeded"

// DurationLimitConfig bounds the accepted track length in seconds.
type DurationLimitConfig struct {
	MinSeconds float64 `yaml:"min_seconds" mapstructure:"min_seconds" default:"0" validate:"gte=0"`
	MaxSeconds float64 `yaml:"max_seconds" mapstructure:"max_seconds" validate:"gte=0"` // 0 means no limit
}

// DurationLimitFilter rejects tracks that are too short or too long.
// A file whose length could not be probed passes.
type DurationLimitFilter struct {
	min time.Duration
	max time.Duration
}

// NewDurationLimitFilter creates a filter that admits everything until configured.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Rejects tracks outside min_seconds..max_seconds"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{codeDurationLimit}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var cfg DurationLimitConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return err
	}
	if cfg.MaxSeconds > 0 && cfg.MinSeconds > cfg.MaxSeconds {
		return errors.Newf("min_seconds (%g) exceeds max_seconds (%g)", cfg.MinSeconds, cfg.MaxSeconds)
	}

	f.min = time.Duration(cfg.MinSeconds * float64(time.Second))
	f.max = time.Duration(cfg.MaxSeconds * float64(time.Second))
	zlog.Debug().Msgf("duration limit filter: min=%v max=%v", f.min, f.max)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, file track.RawFile) Result {
	switch {
	case file.Duration <= 0:
		return Accept()
	case file.Duration < f.min:
		return Reject(codeDurationLimit)
	case f.max > 0 && file.Duration > f.max:
		return Reject(codeDurationLimit)
	}
	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}
