// Package layer defines the map layers a Frame works with. Layers expose
// their capabilities through As* queries instead of type switches.
package layer

import (
	"context"

	"github.com/google/uuid"

	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// UID identifies a layer for the lifetime of the process.
type UID = uuid.UUID

// Layer is anything a Map can hold.
type Layer interface {
	UID() UID
	Name() string
	AsTerrainLayer() (Terrain, bool)
	AsImageLayer() (Image, bool)
	AsElevationLayer() (Elevation, bool)
}

// Terrain is a layer drawing tiles from a source, optionally via a cache.
type Terrain interface {
	Layer
	Enabled() bool
	CacheSettings() *cache.Settings
	TileSource() source.TileSource
	IsCached(ctx context.Context, key tile.TileKey) bool
	// MinLevel is the configured minimum level, if one was set.
	MinLevel() (uint32, bool)
}

type Image interface {
	Terrain
	CreateImage(ctx context.Context, key tile.TileKey) (*tile.GeoImage, error)
}

type Elevation interface {
	Terrain
	CreateHeightField(ctx context.Context, key tile.TileKey) (*tile.HeightField, error)
}
