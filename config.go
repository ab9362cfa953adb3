package gicache

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gekko3d/gicache/gi/core"
)

type AtlasConfig struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	TileSize    int `yaml:"tile_size"`
	MaxTileSpan int `yaml:"max_tile_span"`
}

type CardsConfig struct {
	TexelDensity  float32 `yaml:"texel_density"` // atlas pixels per world unit
	MinResolution uint32  `yaml:"min_resolution"`
	MaxResolution uint32  `yaml:"max_resolution"`
	CaptureDepth  float32 `yaml:"capture_depth"`
}

type ProbesConfig struct {
	Capacity              int     `yaml:"capacity"`
	CellSize              float32 `yaml:"cell_size"`
	MinSpacing            float32 `yaml:"min_spacing"`
	MaxDistance           float32 `yaml:"max_distance"`
	ScreenStride          int     `yaml:"screen_stride"`
	InfluenceRadius       float32 `yaml:"influence_radius"`
	MaxPlacementsPerFrame int     `yaml:"max_placements_per_frame"`
}

type BudgetConfig struct {
	CardsPerFrame      int  `yaml:"cards_per_frame"`
	ProbesPerFrame     int  `yaml:"probes_per_frame"`
	RefreshCleanProbes bool `yaml:"refresh_clean_probes"`
}

type PriorityConfig struct {
	DistanceWeight float32 `yaml:"distance_weight"`
	RecencyWeight  float32 `yaml:"recency_weight"`
	RecencyHorizon uint64  `yaml:"recency_horizon"`
	VisibleBonus   float32 `yaml:"visible_bonus"`
}

type BVHConfig struct {
	MaxLeafPrimitives int `yaml:"max_leaf_primitives"`
	MaxDepth          int `yaml:"max_depth"`
}

// Config sizes every fixed pool and per-frame budget of a Context.
type Config struct {
	Atlas    AtlasConfig    `yaml:"atlas"`
	Cards    CardsConfig    `yaml:"cards"`
	Probes   ProbesConfig   `yaml:"probes"`
	Budget   BudgetConfig   `yaml:"budget"`
	Priority PriorityConfig `yaml:"priority"`
	BVH      BVHConfig      `yaml:"bvh"`
	Debug    bool           `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		Atlas: AtlasConfig{Width: 2048, Height: 2048, TileSize: 64, MaxTileSpan: 8},
		Cards: CardsConfig{TexelDensity: 16, MinResolution: 16, MaxResolution: 512, CaptureDepth: 2},
		Probes: ProbesConfig{
			Capacity:              4096,
			CellSize:              2,
			MinSpacing:            1.5,
			MaxDistance:           64,
			ScreenStride:          32,
			InfluenceRadius:       3,
			MaxPlacementsPerFrame: 64,
		},
		Budget:   BudgetConfig{CardsPerFrame: 64, ProbesPerFrame: 256, RefreshCleanProbes: true},
		Priority: PriorityConfig{DistanceWeight: 1, RecencyWeight: 0.5, RecencyHorizon: 120, VisibleBonus: 0.25},
		BVH:      BVHConfig{MaxLeafPrimitives: 4, MaxDepth: 32},
	}
}

// LoadConfig reads a YAML file over DefaultConfig, so omitted keys keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func WriteConfig(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return enc.Close()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrConfiguration}, args...)...)
}

// Validate rejects configurations that would leave a fixed pool empty.
func (c Config) Validate() error {
	a := c.Atlas
	switch {
	case a.TileSize <= 0:
		return invalid("atlas tile size %d", a.TileSize)
	case a.Width < a.TileSize || a.Height < a.TileSize:
		return invalid("atlas %dx%d smaller than one %d px tile", a.Width, a.Height, a.TileSize)
	case a.MaxTileSpan <= 0:
		return invalid("max tile span %d", a.MaxTileSpan)
	}
	if c.Cards.TexelDensity <= 0 {
		return invalid("texel density %g", c.Cards.TexelDensity)
	}
	if c.Cards.MinResolution == 0 || c.Cards.MinResolution > c.Cards.MaxResolution {
		return invalid("card resolution range [%d, %d]", c.Cards.MinResolution, c.Cards.MaxResolution)
	}
	p := c.Probes
	switch {
	case p.Capacity <= 0:
		return invalid("probe capacity %d", p.Capacity)
	case p.CellSize <= 0:
		return invalid("probe cell size %g", p.CellSize)
	case p.MinSpacing < 0:
		return invalid("probe spacing %g", p.MinSpacing)
	case p.ScreenStride <= 0:
		return invalid("screen stride %d", p.ScreenStride)
	}
	if c.Budget.CardsPerFrame < 0 || c.Budget.ProbesPerFrame < 0 {
		return invalid("negative per-frame budget")
	}
	if c.Priority.RecencyHorizon == 0 {
		return invalid("recency horizon must be positive")
	}
	return nil
}
