// Package config decodes the geostitch configuration file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/viper"

	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Layer kinds.
const (
	KindImage     = "image"
	KindElevation = "elevation"
)

// Config is the complete configuration file.
type Config struct {
	Log    logger.Config `mapstructure:"log"`
	Server ServerConfig  `mapstructure:"server"`
	Map    MapConfig     `mapstructure:"map"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Bind    string        `mapstructure:"bind"`
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// MapConfig describes the served map and its layers.
type MapConfig struct {
	Name          string        `mapstructure:"name"`
	Profile       string        `mapstructure:"profile"`
	Interpolation string        `mapstructure:"elevation_interpolation"`
	Concurrency   int           `mapstructure:"concurrency"`
	Cache         cache.Config  `mapstructure:"cache"`
	Layers        []LayerConfig `mapstructure:"layers"`
}

// LayerConfig describes one layer and the HTTP source behind it.
type LayerConfig struct {
	Name        string            `mapstructure:"name"`
	Kind        string            `mapstructure:"kind"`
	URL         string            `mapstructure:"url"`
	Profile     string            `mapstructure:"profile"`
	Enabled     *bool             `mapstructure:"enabled"`
	CachePolicy string            `mapstructure:"cache_policy"`
	MinLevel    *uint32           `mapstructure:"min_level"`
	MaxLevel    *uint32           `mapstructure:"max_level"`
	TileSize    int               `mapstructure:"tile_size"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`

	// DataMinLevel and DataMaxLevel bound the levels the source has data for.
	DataMinLevel uint32 `mapstructure:"data_min_level"`
	DataMaxLevel uint32 `mapstructure:"data_max_level"`
	// DataExtents are "minlon,minlat,maxlon,maxlat" rectangles the source covers.
	DataExtents []string `mapstructure:"data_extents"`
	// Blacklist lists "z/x/y" tiles known to be missing upstream.
	Blacklist []string `mapstructure:"blacklist"`
}

// IsEnabled defaults to true when unset.
func (l LayerConfig) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.bind", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("map.name", "geostitch")
	v.SetDefault("map.profile", "global-geodetic")
	v.SetDefault("map.elevation_interpolation", "bilinear")
	v.SetDefault("map.concurrency", 4)
	v.SetDefault("map.cache.backend", "memory")
	v.SetDefault("map.cache.max_entries", 10000)
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field that would otherwise fail later while the
// map is being assembled.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port %d out of range", c.Server.Port)
	}
	if _, err := tile.ProfileByName(c.Map.Profile); err != nil {
		return invalid("map.profile: %v", err)
	}
	if _, err := tile.ParseInterpolation(c.Map.Interpolation); err != nil {
		return invalid("map.elevation_interpolation: %v", err)
	}
	switch strings.ToLower(c.Map.Cache.Backend) {
	case "", "none", "memory":
	case "filesystem", "sqlite":
		if c.Map.Cache.Path == "" {
			return invalid("map.cache.path is required for the %s backend", c.Map.Cache.Backend)
		}
	case "redis":
		if c.Map.Cache.Redis.Addr == "" {
			return invalid("map.cache.redis.addr is required for the redis backend")
		}
	default:
		return invalid("map.cache.backend: %v", fmt.Errorf("%w: %q", cache.ErrUnknownBackend, c.Map.Cache.Backend))
	}

	seen := make(map[string]bool, len(c.Map.Layers))
	for i, l := range c.Map.Layers {
		if l.Name == "" {
			return invalid("map.layers[%d]: name is required", i)
		}
		if seen[l.Name] {
			return invalid("map.layers[%d]: duplicate name %q", i, l.Name)
		}
		seen[l.Name] = true
		if err := l.validate(); err != nil {
			return invalid("layer %q: %v", l.Name, err)
		}
	}
	return nil
}

func (l LayerConfig) validate() error {
	switch l.Kind {
	case KindImage, KindElevation:
	default:
		return fmt.Errorf("kind must be %q or %q, got %q", KindImage, KindElevation, l.Kind)
	}
	if !strings.Contains(l.URL, "{z}") || !strings.Contains(l.URL, "{x}") ||
		(!strings.Contains(l.URL, "{y}") && !strings.Contains(l.URL, "{-y}")) {
		return fmt.Errorf("url must contain {z}, {x}, and {y} placeholders")
	}
	if l.Profile != "" {
		if _, err := tile.ProfileByName(l.Profile); err != nil {
			return err
		}
	}
	if _, err := cache.ParseUsage(l.CachePolicy); err != nil {
		return err
	}
	if l.MinLevel != nil && l.MaxLevel != nil && *l.MinLevel > *l.MaxLevel {
		return fmt.Errorf("min_level %d above max_level %d", *l.MinLevel, *l.MaxLevel)
	}
	if l.DataMaxLevel != 0 && l.DataMinLevel > l.DataMaxLevel {
		return fmt.Errorf("data_min_level %d above data_max_level %d", l.DataMinLevel, l.DataMaxLevel)
	}
	if l.TileSize < 0 {
		return fmt.Errorf("tile_size %d is negative", l.TileSize)
	}
	if _, err := l.Extents(); err != nil {
		return err
	}
	if _, err := l.BlacklistIDs(); err != nil {
		return err
	}
	return nil
}

// Extents parses DataExtents.
func (l LayerConfig) Extents() ([]orb.Bound, error) {
	out := make([]orb.Bound, 0, len(l.DataExtents))
	for _, s := range l.DataExtents {
		b, err := tile.ParseExtent(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// BlacklistIDs parses Blacklist.
func (l LayerConfig) BlacklistIDs() ([]tile.TileID, error) {
	out := make([]tile.TileID, 0, len(l.Blacklist))
	for _, s := range l.Blacklist {
		id, err := tile.ParseTileID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
