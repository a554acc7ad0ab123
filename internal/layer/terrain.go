package layer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/compositor"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/metrics"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// Options are the runtime options shared by all terrain layers.
type Options struct {
	Name     string
	MinLevel *uint32
	MaxLevel *uint32
	// TileSize is the pixel size images are normalised to; 0 means
	// tile.DefaultTileSize.
	TileSize int
}

// Deps are the collaborators a terrain layer needs. Cache and Source may be nil.
type Deps struct {
	Source     source.TileSource
	Cache      *cache.Settings
	Compositor *compositor.Compositor
	Logger     logger.Logger
}

// TerrainLayer holds what image and elevation layers share: identity,
// enabled state, level limits, cache settings and the tile source.
type TerrainLayer struct {
	uid     UID
	opts    Options
	enabled atomic.Bool

	src        source.TileSource
	cache      *cache.Settings
	compositor *compositor.Compositor
	logger     logger.Logger

	inflight singleflight.Group
}

func newTerrainLayer(opts Options, deps Deps) *TerrainLayer {
	if opts.TileSize <= 0 {
		opts.TileSize = tile.DefaultTileSize
	}
	l := &TerrainLayer{
		uid:        uuid.New(),
		opts:       opts,
		src:        deps.Source,
		cache:      deps.Cache,
		compositor: deps.Compositor,
		logger:     deps.Logger,
	}
	if l.compositor == nil {
		l.compositor = compositor.New()
	}
	if l.logger == nil {
		l.logger = logger.Nop()
	}
	if l.cache == nil {
		l.cache = &cache.Settings{}
	}
	l.enabled.Store(true)
	return l
}

func (l *TerrainLayer) UID() UID                       { return l.uid }
func (l *TerrainLayer) Name() string                   { return l.opts.Name }
func (l *TerrainLayer) Enabled() bool                  { return l.enabled.Load() }
func (l *TerrainLayer) SetEnabled(v bool)              { l.enabled.Store(v) }
func (l *TerrainLayer) CacheSettings() *cache.Settings { return l.cache }
func (l *TerrainLayer) TileSource() source.TileSource  { return l.src }
func (l *TerrainLayer) TileSize() int                  { return l.opts.TileSize }

func (l *TerrainLayer) MinLevel() (uint32, bool) {
	if l.opts.MinLevel == nil {
		return 0, false
	}
	return *l.opts.MinLevel, true
}

func (l *TerrainLayer) MaxLevel() (uint32, bool) {
	if l.opts.MaxLevel == nil {
		return 0, false
	}
	return *l.opts.MaxLevel, true
}

// inRange reports whether level lies within the configured limits.
func (l *TerrainLayer) inRange(level uint32) bool {
	if lo, ok := l.MinLevel(); ok && level < lo {
		return false
	}
	if hi, ok := l.MaxLevel(); ok && level > hi {
		return false
	}
	return true
}

// IsCached reports whether the cache holds key. Lookup errors count as a miss.
func (l *TerrainLayer) IsCached(ctx context.Context, key tile.TileKey) bool {
	if !l.cache.IsCacheEnabled() {
		return false
	}
	ok, err := l.cache.Cache.Has(ctx, cache.KeyFor(l.cache.Bin, key))
	if err != nil {
		l.logger.Warn("cache lookup failed", "layer", l.Name(), "key", key.String(), "error", err)
		return false
	}
	return ok
}

// sharedLoadTimeout bounds a load that callers share.
const sharedLoadTimeout = 2 * time.Minute

// codec converts a layer's product to and from cache bytes.
type codec[T any] struct {
	encode func(T) ([]byte, error)
	decode func(tile.TileKey, []byte) (T, error)
	clone  func(T) T
}

// load runs the cache-then-source flow shared by image and elevation layers.
// A nil product with a nil error means no data. Concurrent loads of the same
// key share one fetch.
func load[T comparable](ctx context.Context, l *TerrainLayer, key tile.TileKey, c codec[T], create func(context.Context) (T, error)) (T, error) {
	var zero T
	if !l.Enabled() || !l.inRange(key.Level) {
		return zero, nil
	}

	flightKey := key.String()
	if p := key.Profile(); p != nil {
		flightKey = p.Name() + ":" + flightKey
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	// The shared load outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := l.inflight.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return loadOnce(fctx, l, key, c, create)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil || res.Val == nil {
			return zero, res.Err
		}
		out := res.Val.(T)
		if res.Shared && out != zero {
			out = c.clone(out)
		}
		return out, nil
	}
}

func loadOnce[T comparable](ctx context.Context, l *TerrainLayer, key tile.TileKey, c codec[T], create func(context.Context) (T, error)) (any, error) {
	var zero T
	settings := l.cache
	ck := cache.KeyFor(settings.Bin, key)

	if settings.IsCacheEnabled() {
		data, ok, err := settings.Cache.Get(ctx, ck)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues(metrics.ResultError).Inc()
			l.logger.Warn("cache read failed", "layer", l.Name(), "key", ck.String(), "error", err)
		case ok:
			if v, err := c.decode(key, data); err == nil {
				metrics.CacheLookups.WithLabelValues(metrics.ResultHit).Inc()
				return v, nil
			} else {
				l.logger.Warn("discarding corrupt cache entry", "layer", l.Name(), "key", ck.String(), "error", err)
			}
		default:
			metrics.CacheLookups.WithLabelValues(metrics.ResultMiss).Inc()
		}
	}
	if settings.Policy.IsCacheOnly() {
		return nil, nil
	}

	src := l.src
	if src == nil || src.Blacklist().Contains(key.ID()) || !src.HasData(key) {
		return nil, nil
	}

	v, err := create(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, source.ErrNoData):
		return nil, nil
	case errors.Is(err, source.ErrNotSupported), errors.Is(err, tile.ErrInvalidProfile), errors.Is(err, tile.ErrInvalidKey):
		return nil, fmt.Errorf("layer %q: %w", l.Name(), err)
	default:
		l.logger.Info("layer: source failed, no data", "layer", l.Name(), "key", key.String(), "error", err)
		return nil, nil
	}
	if v == zero {
		return nil, nil
	}

	if settings.IsCacheEnabled() && settings.Policy.IsCacheWriteable() {
		if data, err := c.encode(v); err != nil {
			l.logger.Warn("cache encode failed", "layer", l.Name(), "key", ck.String(), "error", err)
		} else if err := settings.Cache.Set(ctx, ck, data); err != nil {
			l.logger.Warn("cache write failed", "layer", l.Name(), "key", ck.String(), "error", err)
		} else {
			metrics.CacheStores.Inc()
		}
	}
	return v, nil
}

// sourceKey re-homes key into the source's profile when both profiles are
// equivalent, so the source can be asked for it directly.
func sourceKey(src source.TileSource, key tile.TileKey) (tile.TileKey, bool) {
	if !src.Profile().IsEquivalentTo(key.Profile()) {
		return tile.TileKey{}, false
	}
	k, err := src.Profile().Key(key.Level, key.X, key.Y)
	return k, err == nil
}
