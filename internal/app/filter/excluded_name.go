package filter

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/osa030/gapbox/internal/domain/track"
)

// ExcludedNameConfig represents the configuration for ExcludedNameFilter.
type ExcludedNameConfig struct {
	Patterns []string `mapstructure:"patterns" default:"[\"._*\"]" validate:"dive,required"`
}

// ExcludedNameFilter rejects files whose name matches a glob pattern,
// such as the resource-fork files macOS drops next to audio files.
type ExcludedNameFilter struct {
	patterns []string
}

func (f *ExcludedNameFilter) Name() string {
	return "excluded_name_filter"
}

func (f *ExcludedNameFilter) Description() string {
	return "Rejects files whose name matches an excluded pattern"
}

func (f *ExcludedNameFilter) ReturnCodes() []string {
	return []string{"excluded_name"}
}

func (f *ExcludedNameFilter) ValidateConfig(settings map[string]any) error {
	var config ExcludedNameConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	for _, p := range config.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return errors.Wrapf(err, "invalid pattern %q", p)
		}
	}
	f.patterns = config.Patterns
	return nil
}

func (f *ExcludedNameFilter) Check(ctx context.Context, file track.RawFile) Result {
	for _, p := range f.patterns {
		if ok, _ := filepath.Match(p, file.Name); ok {
			return Reject("excluded_name")
		}
	}
	return Accept()
}

func init() {
	Register("excluded_name_filter", func() Filter {
		return &ExcludedNameFilter{}
	})
}
