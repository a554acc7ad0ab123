// Package source defines the TileSource contract the compositing pipeline
// pulls rasters from, plus HTTP-backed implementations.
package source

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/paulmach/orb"

	"github.com/kiesman99/geostitch/pkg/tile"
)

var (
	// ErrNoData means the source has nothing for the requested tile.
	ErrNoData = errors.New("source: no data for tile")
	// ErrNotSupported means the source cannot produce the requested kind of raster.
	ErrNotSupported = errors.New("source: operation not supported")
)

// TileSource produces rasters organised under one profile.
type TileSource interface {
	Name() string
	Profile() *tile.Profile
	CreateImage(ctx context.Context, key tile.TileKey) (*image.RGBA, error)
	CreateHeightField(ctx context.Context, key tile.TileKey) (*tile.HeightField, error)
	// HasData is a cheap check against the source's advertised coverage.
	HasData(key tile.TileKey) bool
	Blacklist() *Blacklist
}

// Blacklist remembers tiles a source has failed to produce.
type Blacklist struct {
	mu  sync.RWMutex
	ids map[tile.TileID]struct{}
}

func NewBlacklist() *Blacklist {
	return &Blacklist{ids: make(map[tile.TileID]struct{})}
}

func (b *Blacklist) Add(id tile.TileID) {
	b.mu.Lock()
	b.ids[id] = struct{}{}
	b.mu.Unlock()
}

func (b *Blacklist) Contains(id tile.TileID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.ids[id]
	return ok
}

func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}

func (b *Blacklist) Clear() {
	b.mu.Lock()
	b.ids = make(map[tile.TileID]struct{})
	b.mu.Unlock()
}

// Coverage describes where a source has data: a level range and an optional
// set of extents in lon/lat.
type Coverage struct {
	MinLevel uint32
	MaxLevel uint32
	Extents  []orb.Bound
}

// Contains reports whether key falls inside the coverage. A zero MaxLevel
// means no upper limit; no extents means the whole profile.
func (c Coverage) Contains(key tile.TileKey) bool {
	if key.Level < c.MinLevel || (c.MaxLevel > 0 && key.Level > c.MaxLevel) {
		return false
	}
	if len(c.Extents) == 0 {
		return true
	}
	ext := key.Extent()
	if p := key.Profile(); p != nil && !p.SRS().IsGeographic() {
		var err error
		if ext, err = p.SRS().TransformBound(ext, tile.EPSG4326); err != nil {
			return false
		}
	}
	for _, e := range c.Extents {
		if tile.Overlaps(e, ext) {
			return true
		}
	}
	return false
}
