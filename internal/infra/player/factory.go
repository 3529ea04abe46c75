package player

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/infra/config"
)

// Builder constructs a player from backend settings.
type Builder func(settings map[string]any) (Player, error)

// registry holds registered backends.
var registry = make(map[string]Builder)

// Register registers a backend builder under name.
func Register(name string, b Builder) {
	registry[name] = b
}

// Registered returns the registered backend names.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// New creates the player configured in cfg.
func New(cfg config.PlayerConfig) (Player, error) {
	build, ok := registry[cfg.Type]
	if !ok {
		return nil, errors.Newf("unsupported player type: %s", cfg.Type)
	}

	zlog.Debug().Msgf("creating player: type=%s settings=%+v", cfg.Type, cfg.Settings)
	p, err := build(cfg.Settings)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create player (type %s)", cfg.Type)
	}
	zlog.Info().Msgf("player ready: type=%s", cfg.Type)
	return p, nil
}
