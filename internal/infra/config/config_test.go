package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3.0, cfg.Playback.GapMinSeconds)
	assert.Equal(t, 10.0, cfg.Playback.GapMaxSeconds)
	assert.Equal(t, 10, cfg.Playback.FrameRate)
	assert.Equal(t, 64, cfg.Playback.EventBuffer)
	assert.Equal(t, "clock", cfg.Player.Type)
	assert.Equal(t, 500, cfg.Library.DebounceMs)
	assert.False(t, cfg.AuthEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "explicit zero gap survives defaults",
			yaml: `
playback:
  gap_min_seconds: 0
  gap_max_seconds: 0
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.0, cfg.Playback.GapMinSeconds)
				assert.Equal(t, 0.0, cfg.Playback.GapMaxSeconds)
			},
		},
		{
			name: "reversed bounds are accepted",
			yaml: `
playback:
  gap_min_seconds: 10
  gap_max_seconds: 3
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10.0, cfg.Playback.GapMinSeconds)
				assert.Equal(t, 3.0, cfg.Playback.GapMaxSeconds)
			},
		},
		{
			name: "player settings",
			yaml: `
player:
  type: speaker
  settings:
    buffer_ms: 200
library:
  paths: [/music/a.mp3, /music/b.mp3]
  watch_dir: /music/inbox
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "speaker", cfg.Player.Type)
				assert.Equal(t, 200, cfg.Player.Settings["buffer_ms"])
				assert.Equal(t, []string{"/music/a.mp3", "/music/b.mp3"}, cfg.Library.Paths)
				assert.Equal(t, "/music/inbox", cfg.Library.WatchDir)
			},
		},
		{
			name: "gap above one hour",
			yaml: `
playback:
  gap_max_seconds: 3601
`,
			wantErr: true,
		},
		{
			name: "negative gap",
			yaml: `
playback:
  gap_min_seconds: -1
`,
			wantErr: true,
		},
		{
			name: "unknown player type",
			yaml: `
player:
  type: vlc
`,
			wantErr: true,
		},
		{
			name: "frame rate out of range",
			yaml: `
playback:
  frame_rate: 0
`,
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("GAPBOX_CONTROL_TOKEN", "secret")
	t.Setenv("GAPBOX_ADDR", ":9999")

	cfg, err := Parse([]byte("control:\n  token: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Control.Token)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7000\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Filters(t *testing.T) {
	yamlData := `
filters:
  empty_file_filter:
    enabled: true
  duration_limit_filter:
    enabled: false
    settings:
      max_seconds: 600
`
	cfg, err := Parse([]byte(yamlData))
	require.NoError(t, err)

	assert.True(t, cfg.IsFilterEnabled("empty_file_filter"))
	assert.False(t, cfg.IsFilterEnabled("duration_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("missing_filter"))
	assert.Equal(t, 600, cfg.FilterSettings("duration_limit_filter")["max_seconds"])
	assert.Nil(t, cfg.FilterSettings("missing_filter"))
}
