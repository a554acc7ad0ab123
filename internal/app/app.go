// Package app assembles a live Map from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/compositor"
	"github.com/kiesman99/geostitch/internal/config"
	"github.com/kiesman99/geostitch/internal/layer"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/maps"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// App is a built map plus the collaborators shared by its layers.
type App struct {
	Map        *maps.Map
	Compositor *compositor.Compositor
	Logger     logger.Logger
}

// Close closes the map and with it the cache.
func (a *App) Close() error {
	return a.Map.Close()
}

// Build opens the cache and adds one layer per configured entry, in order.
func Build(ctx context.Context, cfg config.MapConfig, l logger.Logger) (*App, error) {
	if l == nil {
		l = logger.Nop()
	}
	profile, err := tile.ProfileByName(cfg.Profile)
	if err != nil {
		return nil, err
	}
	interp, err := tile.ParseInterpolation(cfg.Interpolation)
	if err != nil {
		return nil, err
	}

	c, err := cache.Open(ctx, cfg.Cache, l)
	if err != nil {
		return nil, fmt.Errorf("app: open cache: %w", err)
	}
	m := maps.New(maps.Options{
		Name:                   cfg.Name,
		Profile:                profile,
		ElevationInterpolation: interp,
	}, maps.WithCache(c), maps.WithLogger(l))

	comp := compositor.New(compositor.WithLogger(l), compositor.WithConcurrency(cfg.Concurrency))
	for _, lc := range cfg.Layers {
		lyr, err := NewLayer(lc, c, comp, interp, l)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("app: layer %q: %w", lc.Name, err)
		}
		if err := m.AddLayer(lyr); err != nil {
			m.Close()
			return nil, err
		}
		l.Info("layer added", "layer", lc.Name, "kind", lc.Kind, "enabled", lc.IsEnabled())
	}
	return &App{Map: m, Compositor: comp, Logger: l}, nil
}

// NewLayer builds the source and the layer described by lc. c may be nil.
func NewLayer(lc config.LayerConfig, c cache.Cache, comp *compositor.Compositor, interp tile.Interpolation, l logger.Logger) (layer.Layer, error) {
	src, err := NewSource(lc, l)
	if err != nil {
		return nil, err
	}
	usage, err := cache.ParseUsage(lc.CachePolicy)
	if err != nil {
		return nil, err
	}
	opts := layer.Options{
		Name:     lc.Name,
		MinLevel: lc.MinLevel,
		MaxLevel: lc.MaxLevel,
		TileSize: lc.TileSize,
	}
	deps := layer.Deps{
		Source:     src,
		Cache:      &cache.Settings{Cache: c, Bin: lc.Name, Policy: cache.Policy{Usage: usage}},
		Compositor: comp,
		Logger:     l,
	}

	switch lc.Kind {
	case config.KindImage:
		lyr := layer.NewImageLayer(opts, deps)
		lyr.SetEnabled(lc.IsEnabled())
		return lyr, nil
	case config.KindElevation:
		lyr := layer.NewElevationLayer(opts, interp, deps)
		lyr.SetEnabled(lc.IsEnabled())
		return lyr, nil
	}
	return nil, fmt.Errorf("unknown layer kind %q", lc.Kind)
}

// NewSource builds the HTTP tile source for lc: XYZ imagery for image
// layers, terrarium PNGs for elevation layers.
func NewSource(lc config.LayerConfig, l logger.Logger) (source.TileSource, error) {
	var profile *tile.Profile
	if lc.Profile != "" {
		p, err := tile.ProfileByName(lc.Profile)
		if err != nil {
			return nil, err
		}
		profile = p
	}
	extents, err := lc.Extents()
	if err != nil {
		return nil, err
	}
	opts := source.HTTPOptions{
		Name:        lc.Name,
		URLTemplate: lc.URL,
		Profile:     profile,
		Headers:     lc.Headers,
		Timeout:     lc.Timeout,
		Coverage: source.Coverage{
			MinLevel: lc.DataMinLevel,
			MaxLevel: lc.DataMaxLevel,
			Extents:  extents,
		},
		Logger: l,
	}

	var src source.TileSource
	switch lc.Kind {
	case config.KindImage:
		src, err = source.NewXYZ(opts)
	case config.KindElevation:
		src, err = source.NewTerrarium(opts)
	default:
		return nil, fmt.Errorf("unknown layer kind %q", lc.Kind)
	}
	if err != nil {
		return nil, err
	}

	ids, err := lc.BlacklistIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		src.Blacklist().Add(id)
	}
	return src, nil
}
