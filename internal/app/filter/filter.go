// Package filter screens files before they join the pool.
package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/gapbox/internal/domain/track"
)

// Result is the verdict of a single filter.
type Result struct {
	Accepted bool
	Code     string // set when rejected, e.g. "empty_file"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter inspects a raw file and admits or rejects it.
type Filter interface {
	// Name is the key used under filters: in the config file.
	Name() string
	Description() string
	// ReturnCodes lists every code Check may reject with.
	ReturnCodes() []string
	// ValidateConfig decodes, validates and applies settings.
	ValidateConfig(settings map[string]any) error
	Check(ctx context.Context, f track.RawFile) Result
}

var registry = make(map[string]func() Filter)

// Register makes a filter available to NewChainFromConfig.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories keyed by name.
func GetRegistered() map[string]func() Filter {
	return registry
}

// decodeSettings fills out from a settings map, then applies default and
// validate tags.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
