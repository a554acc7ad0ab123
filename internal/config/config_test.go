package config

import (
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/geostitch/pkg/tile"
)

const sample = `
log:
  level: debug
  format: json
server:
  port: 9090
map:
  name: world
  profile: spherical-mercator
  elevation_interpolation: nearest
  cache:
    backend: sqlite
    path: /tmp/tiles.db
  layers:
    - name: osm
      kind: image
      url: https://{s}.tile.example.org/{z}/{x}/{y}.png
      cache_policy: read-write
      max_level: 18
      headers:
        Referer: https://example.org
    - name: dem
      kind: elevation
      url: https://dem.example.org/{z}/{x}/{y}.png
      enabled: false
      min_level: 2
      data_max_level: 15
      data_extents: ["-10,40,10,60"]
      blacklist: ["3/1/2"]
`

func load(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return Load(v)
}

func TestLoad(t *testing.T) {
	cfg, err := load(t, sample)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:9090", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)

	assert.Equal(t, "world", cfg.Map.Name)
	assert.Equal(t, "spherical-mercator", cfg.Map.Profile)
	assert.Equal(t, "nearest", cfg.Map.Interpolation)
	assert.Equal(t, 4, cfg.Map.Concurrency)
	assert.Equal(t, "sqlite", cfg.Map.Cache.Backend)
	assert.Equal(t, "/tmp/tiles.db", cfg.Map.Cache.Path)

	require.Len(t, cfg.Map.Layers, 2)
	osm := cfg.Map.Layers[0]
	assert.Equal(t, KindImage, osm.Kind)
	assert.True(t, osm.IsEnabled())
	assert.Nil(t, osm.MinLevel)
	require.NotNil(t, osm.MaxLevel)
	assert.Equal(t, uint32(18), *osm.MaxLevel)
	assert.Equal(t, "https://example.org", osm.Headers["referer"])

	dem := cfg.Map.Layers[1]
	assert.False(t, dem.IsEnabled())
	require.NotNil(t, dem.MinLevel)
	assert.Equal(t, uint32(2), *dem.MinLevel)
	extents, err := dem.Extents()
	require.NoError(t, err)
	assert.Equal(t, []orb.Bound{{Min: orb.Point{-10, 40}, Max: orb.Point{10, 60}}}, extents)
	ids, err := dem.BlacklistIDs()
	require.NoError(t, err)
	assert.Equal(t, []tile.TileID{{Level: 3, X: 1, Y: 2}}, ids)
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.Equal(t, "global-geodetic", cfg.Map.Profile)
	assert.Equal(t, "memory", cfg.Map.Cache.Backend)
	assert.Equal(t, 10000, cfg.Map.Cache.MaxEntries)
	assert.Empty(t, cfg.Map.Layers)
}

func TestValidate(t *testing.T) {
	layer := func(extra string) string {
		return "map:\n  layers:\n    - name: a\n      kind: image\n      url: http://x/{z}/{x}/{y}\n" + extra
	}

	tests := []struct {
		name string
		yaml string
	}{
		{"bad profile", "map:\n  profile: cube\n"},
		{"bad interpolation", "map:\n  elevation_interpolation: cubic\n"},
		{"unknown backend", "map:\n  cache:\n    backend: etcd\n"},
		{"sqlite without path", "map:\n  cache:\n    backend: sqlite\n"},
		{"redis without addr", "map:\n  cache:\n    backend: redis\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"missing name", "map:\n  layers:\n    - kind: image\n      url: http://x/{z}/{x}/{y}\n"},
		{"duplicate name", layer("    - name: a\n      kind: image\n      url: http://x/{z}/{x}/{y}\n")},
		{"bad kind", "map:\n  layers:\n    - name: a\n      kind: vector\n      url: http://x/{z}/{x}/{y}\n"},
		{"url without placeholders", "map:\n  layers:\n    - name: a\n      kind: image\n      url: http://x/tile.png\n"},
		{"bad policy", layer("      cache_policy: sometimes\n")},
		{"inverted levels", layer("      min_level: 5\n      max_level: 2\n")},
		{"bad extent", layer("      data_extents: [\"10,0,0,5\"]\n")},
		{"bad blacklist", layer("      blacklist: [\"3/1\"]\n")},
		{"bad source profile", layer("      profile: cube\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.yaml)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestTMSPlaceholderAccepted(t *testing.T) {
	_, err := load(t, "map:\n  layers:\n    - name: a\n      kind: image\n      url: http://x/{z}/{x}/{-y}.png\n")
	assert.NoError(t, err)
}
