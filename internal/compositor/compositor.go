// Package compositor answers a tile request from a source whose tiling does
// not line up with the request, by fetching every intersecting source tile
// and stitching them together.
package compositor

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/metrics"
	"github.com/kiesman99/geostitch/internal/mosaic"
	"github.com/kiesman99/geostitch/internal/raster"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/internal/telemetry"
	"github.com/kiesman99/geostitch/pkg/tile"
)

const defaultConcurrency = 4

// Compositor is safe for concurrent use.
type Compositor struct {
	logger      logger.Logger
	concurrency int
	tileSize    int
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(c *Compositor) { c.logger = l }
}

// WithConcurrency bounds the number of parallel source fetches per request.
func WithConcurrency(n int) Option {
	return func(c *Compositor) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithTileSize sets the source tile size, in pixels, assumed when a mosaic is
// checked against mosaic.MaxPixels before any tile is fetched.
func WithTileSize(n int) Option {
	return func(c *Compositor) {
		if n > 0 {
			c.tileSize = n
		}
	}
}

// New returns a Compositor with the given options applied.
func New(opts ...Option) *Compositor {
	c := &Compositor{logger: logger.Nop(), concurrency: defaultConcurrency, tileSize: tile.DefaultTileSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MosaicImages stitches every src tile intersecting key into one image.
//
// The result covers the aggregate extent of the contributing tiles, in the
// source's SRS; Requested holds key's extent in that SRS. Callers needing
// an exact key-sized image crop it themselves.
//
// No intersecting tiles, or any tile that cannot be fetched, yields
// (nil, nil): a partial mosaic is never returned. Cancellation returns
// ctx.Err().
func (c *Compositor) MosaicImages(ctx context.Context, key tile.TileKey, src source.TileSource) (*tile.GeoImage, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "compositor.MosaicImages", trace.WithAttributes(
		attribute.String("tile.key", key.String()),
		attribute.String("source", src.Name()),
	))
	defer span.End()
	defer observe("image", time.Now())

	keys, err := src.Profile().IntersectingTiles(key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("compositor: intersecting tiles for %s: %w", key, err)
	}
	span.SetAttributes(attribute.Int("tiles", len(keys)))
	if len(keys) == 0 {
		metrics.MosaicFailures.WithLabelValues("no_tiles").Inc()
		return nil, nil
	}
	if err := mosaic.CheckSpan(keys, c.tileSize); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	images := make([]*image.RGBA, len(keys))
	err = c.fanOut(ctx, keys, func(ctx context.Context, i int) error {
		img, err := src.CreateImage(ctx, keys[i])
		if err == nil && img == nil {
			err = source.ErrNoData
		}
		images[i] = img
		return err
	})
	if err != nil {
		return nil, c.failed(ctx, span, key, src, err)
	}

	b := mosaic.New(mosaic.WithLogger(c.logger))
	for i, k := range keys {
		b.Add(tile.NewTileImage(images[i], k))
	}
	img, err := b.Build()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if img == nil {
		return nil, nil
	}

	srs := src.Profile().SRS()
	out := &tile.GeoImage{Image: img, SRS: srs, Extent: b.Extent(), Requested: b.Extent()}
	if requested, err := keyExtentIn(key, srs); err == nil {
		out.Requested = requested
	}
	metrics.MosaicsBuilt.Inc()
	return out, nil
}

// CompositeHeightFields resamples every src heightfield intersecting key onto
// one grid covering key. The grid size is taken from the first intersecting
// tile. Posts are evenly spaced in key's SRS and sampled at their position
// in the source's SRS. Failure semantics match MosaicImages.
func (c *Compositor) CompositeHeightFields(ctx context.Context, key tile.TileKey, src source.TileSource, interp tile.Interpolation) (*tile.HeightField, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "compositor.CompositeHeightFields", trace.WithAttributes(
		attribute.String("tile.key", key.String()),
		attribute.String("source", src.Name()),
	))
	defer span.End()
	defer observe("heightfield", time.Now())

	keys, err := src.Profile().IntersectingTiles(key)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("compositor: intersecting tiles for %s: %w", key, err)
	}
	span.SetAttributes(attribute.Int("tiles", len(keys)))
	if len(keys) == 0 {
		metrics.MosaicFailures.WithLabelValues("no_tiles").Inc()
		return nil, nil
	}

	fields := make([]*tile.HeightField, len(keys))
	err = c.fanOut(ctx, keys, func(ctx context.Context, i int) error {
		hf, err := src.CreateHeightField(ctx, keys[i])
		if err != nil {
			return err
		}
		if hf == nil {
			return source.ErrNoData
		}
		if err := hf.SetExtent(keys[i].Extent()); err != nil {
			return err
		}
		fields[i] = hf
		return nil
	})
	if err != nil {
		return nil, c.failed(ctx, span, key, src, err)
	}

	dstSRS, srcSRS := src.Profile().SRS(), src.Profile().SRS()
	if p := key.Profile(); p != nil {
		dstSRS = p.SRS()
	}
	out, err := raster.ReprojectHeightField(key.Extent(), dstSRS, srcSRS, fields[0].Columns, fields[0].Rows, fields, interp)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.MosaicsBuilt.Inc()
	return out, nil
}

// fanOut runs fetch for every key with bounded parallelism. The first error
// cancels the remaining fetches.
func (c *Compositor) fanOut(ctx context.Context, keys []tile.TileKey, fetch func(context.Context, int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fetch(gctx, i); err != nil {
				return fmt.Errorf("%s: %w", keys[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Compositor) failed(ctx context.Context, span trace.Span, key tile.TileKey, src source.TileSource, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.MosaicFailures.WithLabelValues("canceled").Inc()
		span.SetStatus(codes.Error, ctxErr.Error())
		return ctxErr
	}
	metrics.MosaicFailures.WithLabelValues("partial").Inc()
	span.RecordError(err)
	c.logger.Info("compositor: incomplete source coverage, no data", "key", key.String(), "source", src.Name(), "error", err)
	return nil
}

func keyExtentIn(key tile.TileKey, srs tile.SRS) (ext orb.Bound, err error) {
	ext = key.Extent()
	p := key.Profile()
	if p == nil || p.SRS().Equal(srs) {
		return ext, nil
	}
	return p.SRS().TransformBound(ext, srs)
}

func observe(kind string, start time.Time) {
	metrics.CompositeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
