package maps

import (
	"context"

	"github.com/google/uuid"

	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/layer"
	"github.com/kiesman99/geostitch/internal/metrics"
	"github.com/kiesman99/geostitch/internal/raster"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// Parts selects which kinds of layer a Frame sees.
type Parts uint8

const (
	PartImage Parts = 1 << iota
	PartElevation
	PartOther

	PartsTerrain = PartImage | PartElevation
	EntireModel  = PartImage | PartElevation | PartOther
)

func (p Parts) includes(l layer.Layer) bool {
	if p == 0 {
		p = EntireModel
	}
	if _, ok := l.AsImageLayer(); ok {
		return p&PartImage != 0
	}
	if _, ok := l.AsElevationLayer(); ok {
		return p&PartElevation != 0
	}
	return p&PartOther != 0
}

// Frame is a snapshot of a Map's layers that is refreshed only when the map's
// revision moves on. The zero Frame is unbound.
//
// A Frame is cheap to copy. It is not safe for concurrent use: Sync mutates
// it. Separate frames over the same Map may sync concurrently.
type Frame struct {
	m     *Map
	parts Parts

	initialized     bool
	revision        int64
	layers          []layer.Layer
	elevation       []layer.Elevation
	highestMinLevel uint32
}

// NewFrame returns a frame bound to m and synced.
func NewFrame(m *Map, parts Parts) Frame {
	var f Frame
	f.parts = parts
	f.Bind(m)
	return f
}

// Bind attaches f to m, drops all derived state and syncs.
func (f *Frame) Bind(m *Map) bool {
	f.Attach(m)
	return f.Sync()
}

// Attach binds f to m without syncing; NeedsSync reports true until the
// first Sync.
func (f *Frame) Attach(m *Map) {
	f.m = m
	f.reset()
}

func (f *Frame) reset() {
	f.initialized = false
	f.revision = 0
	f.layers = nil
	f.elevation = nil
	f.highestMinLevel = 0
}

// Valid reports whether f is bound to a map that is still open.
func (f *Frame) Valid() bool {
	return f.m != nil && !f.m.Closed()
}

// Sync refreshes f from its map and reports whether anything changed. An
// unbound frame, or one whose map was closed, is emptied and reports false.
func (f *Frame) Sync() bool {
	if !f.Valid() {
		f.m = nil
		f.reset()
		return false
	}
	changed := f.m.sync(f)
	if changed {
		f.refreshComputedValues()
	}
	metrics.FrameSyncs.WithLabelValues(metrics.Bool(changed)).Inc()
	return changed
}

// NeedsSync reports whether f is bound and behind its map. A frame whose
// map was closed needs a sync to drop its layers.
func (f *Frame) NeedsSync() bool {
	if f.m == nil {
		return false
	}
	if f.m.Closed() {
		return f.initialized || len(f.layers) > 0
	}
	return !f.initialized || f.revision != f.m.Revision()
}

func (f *Frame) refreshComputedValues() {
	f.elevation = f.elevation[:0:0]
	f.highestMinLevel = 0
	for _, l := range f.layers {
		if e, ok := l.AsElevationLayer(); ok {
			f.elevation = append(f.elevation, e)
		}
		if t, ok := l.AsTerrainLayer(); ok {
			if lvl, set := t.MinLevel(); set && lvl > f.highestMinLevel {
				f.highestMinLevel = lvl
			}
		}
	}
}

// UID returns the map's UID, or the zero UUID when unbound.
func (f *Frame) UID() uuid.UUID {
	if !f.Valid() {
		return uuid.Nil
	}
	return f.m.UID()
}

func (f *Frame) Revision() int64 { return f.revision }
func (f *Frame) Parts() Parts    { return f.parts }

// Map returns the bound map, or nil.
func (f *Frame) Map() *Map {
	if !f.Valid() {
		return nil
	}
	return f.m
}

func (f *Frame) ContainsLayer(uid layer.UID) bool {
	for _, l := range f.layers {
		if l.UID() == uid {
			return true
		}
	}
	return false
}

// Layers returns the synced layers, bottom first. The slice must not be
// modified.
func (f *Frame) Layers() []layer.Layer { return f.layers }

func (f *Frame) ElevationLayers() []layer.Elevation { return f.elevation }

func (f *Frame) ImageLayers() []layer.Image {
	var out []layer.Image
	for _, l := range f.layers {
		if img, ok := l.AsImageLayer(); ok {
			out = append(out, img)
		}
	}
	return out
}

// HighestMinLevel is the largest explicitly configured minimum level over
// all terrain layers, or 0.
func (f *Frame) HighestMinLevel() uint32 { return f.highestMinLevel }

// Cache returns the map cache, or nil when unbound.
func (f *Frame) Cache() cache.Cache {
	if !f.Valid() {
		return nil
	}
	return f.m.Cache()
}

// IsCached reports whether every enabled terrain layer can serve key
// without touching its source. Layers that cannot slow the request down
// are skipped: cache-only layers, layers without a source, and tiles the
// source has blacklisted or has no data for.
func (f *Frame) IsCached(ctx context.Context, key tile.TileKey) bool {
	cached := f.isCached(ctx, key)
	metrics.CoverageChecks.WithLabelValues(metrics.Bool(cached)).Inc()
	return cached
}

func (f *Frame) isCached(ctx context.Context, key tile.TileKey) bool {
	if f.Cache() == nil {
		return false
	}
	for _, l := range f.layers {
		t, ok := l.AsTerrainLayer()
		if !ok || !t.Enabled() {
			continue
		}
		policy := t.CacheSettings().Policy
		if policy.IsCacheOnly() {
			continue
		}
		if policy.IsCacheDisabled() {
			return false
		}
		src := t.TileSource()
		if src == nil {
			continue
		}
		if src.Blacklist().Contains(key.ID()) {
			continue
		}
		if !src.HasData(key) {
			continue
		}
		if !t.IsCached(ctx, key) {
			return false
		}
	}
	return true
}

// PopulateHeightField builds a columns x rows grid over key from the frame's
// enabled elevation layers. The top-most layer with data wins; lower layers
// fill its gaps. It returns nil when no layer has data for key.
func (f *Frame) PopulateHeightField(ctx context.Context, key tile.TileKey, columns, rows int) (*tile.HeightField, error) {
	if !f.Valid() {
		return nil, nil
	}
	interp := f.m.Options().ElevationInterpolation

	out := tile.NewHeightField(columns, rows, tile.NoData)
	if err := out.SetExtent(key.Extent()); err != nil {
		return nil, err
	}

	found := false
	for i := len(f.elevation) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := f.elevation[i]
		if !e.Enabled() {
			continue
		}
		hf, err := e.CreateHeightField(ctx, key)
		if err != nil {
			return nil, err
		}
		if hf == nil {
			continue
		}
		found = true
		if raster.FillNoData(out, hf, interp) == 0 {
			break
		}
	}
	if !found {
		return nil, nil
	}
	return out, nil
}
