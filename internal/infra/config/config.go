// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Control  ControlConfig           `yaml:"control"`
	Playback PlaybackConfig          `yaml:"playback"`
	Player   PlayerConfig            `yaml:"player"`
	Library  LibraryConfig           `yaml:"library"`
	Filters  map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080" validate:"required"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ControlConfig represents control API configuration.
type ControlConfig struct {
	Token string `yaml:"token"` // empty disables authentication
}

// PlaybackConfig represents sequencer configuration.
type PlaybackConfig struct {
	GapMinSeconds float64 `yaml:"gap_min_seconds" default:"3" validate:"gte=0,lte=3600"`
	GapMaxSeconds float64 `yaml:"gap_max_seconds" default:"10" validate:"gte=0,lte=3600"`
	FrameRate     int     `yaml:"frame_rate" default:"10" validate:"gte=1,lte=120"`
	EventBuffer   int     `yaml:"event_buffer" default:"64" validate:"gte=1"`
}

// PlayerConfig represents the playback backend configuration.
type PlayerConfig struct {
	Type     string         `yaml:"type" default:"clock" validate:"required,oneof=clock speaker"`
	Settings map[string]any `yaml:"settings"`
}

// LibraryConfig represents where tracks come from.
type LibraryConfig struct {
	Paths      []string `yaml:"paths"`
	WatchDir   string   `yaml:"watch_dir"`
	DebounceMs int      `yaml:"debounce_ms" default:"500" validate:"gte=0,lte=60000"`
}

// FilterConfig represents a single admission filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	return &cfg, nil
}

// Load loads configuration from a YAML file.
// Defaults are applied before the file so explicit zero values survive.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("GAPBOX_CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("GAPBOX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GAPBOX_WATCH_DIR"); v != "" {
		c.Library.WatchDir = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// AuthEnabled reports whether control requests must carry a token.
func (c *Config) AuthEnabled() bool {
	return c.Control.Token != ""
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(name string) bool {
	fc, ok := c.Filters[name]
	return ok && fc.Enabled
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(name string) map[string]any {
	if fc, ok := c.Filters[name]; ok {
		return fc.Settings
	}
	return nil
}
