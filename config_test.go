package gicache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/gicache/gi/core"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2048, cfg.Atlas.Width)
	assert.Equal(t, 64, cfg.Atlas.TileSize)
	assert.Equal(t, 4096, cfg.Probes.Capacity)
	assert.Equal(t, 64, cfg.Budget.CardsPerFrame)
	assert.Equal(t, 256, cfg.Budget.ProbesPerFrame)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("atlas:\n  width: 1024\nbudget:\n  cards_per_frame: 8\ndebug: true\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Atlas.Width)
	assert.Equal(t, 2048, cfg.Atlas.Height)
	assert.Equal(t, 8, cfg.Budget.CardsPerFrame)
	assert.Equal(t, 256, cfg.Budget.ProbesPerFrame)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("atlas: [1, 2"), 0o644))
	_, err = LoadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")

	invalidTile := filepath.Join(dir, "tile.yaml")
	require.NoError(t, os.WriteFile(invalidTile, []byte("atlas:\n  tile_size: 0\n"), 0o644))
	_, err = LoadConfig(invalidTile)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.True(t, IsConfigError(err))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"atlas smaller than a tile", func(c *Config) { c.Atlas.Width = 32 }},
		{"no tile span", func(c *Config) { c.Atlas.MaxTileSpan = 0 }},
		{"zero density", func(c *Config) { c.Cards.TexelDensity = 0 }},
		{"inverted resolution", func(c *Config) { c.Cards.MinResolution = 1024 }},
		{"no probes", func(c *Config) { c.Probes.Capacity = 0 }},
		{"zero cell", func(c *Config) { c.Probes.CellSize = 0 }},
		{"zero stride", func(c *Config) { c.Probes.ScreenStride = 0 }},
		{"negative budget", func(c *Config) { c.Budget.CardsPerFrame = -1 }},
		{"zero horizon", func(c *Config) { c.Priority.RecencyHorizon = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)
		})
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Probes.MinSpacing = 3
	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, cfg))
	assert.Contains(t, buf.String(), "min_spacing: 3")

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	back, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
