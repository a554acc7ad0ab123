// Package stitch mosaics every source tile covering a geographic region at
// one level and crops the result to the region.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/mosaic"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// ErrEmptyRegion is returned when a request covers no tile of the source.
var ErrEmptyRegion = errors.New("stitch: region covers no tiles")

// Request describes the region to stitch. When Width and Height are set the
// region is Width x Height pixels centred on Center; otherwise it is Extent.
// Coordinates are longitude/latitude.
type Request struct {
	Level  uint32
	Extent orb.Bound

	Center        orb.Point
	Width, Height int
}

// Centered reports whether r uses the centred form.
func (r Request) Centered() bool { return r.Width > 0 || r.Height > 0 }

// Result is the stitched region plus download statistics.
type Result struct {
	Image           *tile.GeoImage
	SuccessfulTiles int
	TotalTiles      int
	FailedTiles     []FailedTile
}

// TileError reports that too many tiles failed to produce an image.
type TileError struct {
	Message         string
	FailedTiles     []FailedTile
	SuccessfulTiles int
	TotalTiles      int
}

func (e *TileError) Error() string {
	return e.Message
}

// FailedTile records why one tile is missing from the output.
type FailedTile struct {
	Key   string
	Error string
}

// Stitcher fetches tiles from one source.
type Stitcher struct {
	src         source.TileSource
	tileSize    int
	concurrency int
	logger      logger.Logger
	progress    func()
}

// Option configures a Stitcher.
type Option func(*Stitcher)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *Stitcher) { s.logger = l }
}

// WithTileSize sets the pixel size used to size centred requests.
func WithTileSize(n int) Option {
	return func(s *Stitcher) {
		if n > 0 {
			s.tileSize = n
		}
	}
}

// WithConcurrency bounds the number of parallel tile downloads.
func WithConcurrency(n int) Option {
	return func(s *Stitcher) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithProgress registers a callback invoked once per finished tile.
func WithProgress(f func()) Option {
	return func(s *Stitcher) { s.progress = f }
}

// New returns a Stitcher reading from src.
func New(src source.TileSource, opts ...Option) *Stitcher {
	s := &Stitcher{
		src:         src,
		tileSize:    tile.DefaultTileSize,
		concurrency: 4,
		logger:      logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Region returns the request's extent in the source's reference.
func (s *Stitcher) Region(req Request) (orb.Bound, error) {
	p := s.src.Profile()
	if !req.Centered() {
		if err := tile.ValidateExtent(req.Extent); err != nil {
			return orb.Bound{}, err
		}
		return tile.EPSG4326.TransformBound(req.Extent, p.SRS())
	}
	if req.Width <= 0 || req.Height <= 0 {
		return orb.Bound{}, fmt.Errorf("%w: width/height must be positive: %d %d", tile.ErrInvalidExtent, req.Width, req.Height)
	}
	c, err := tile.EPSG4326.Transform(req.Center, p.SRS())
	if err != nil {
		return orb.Bound{}, err
	}
	tw, th := p.TileDimensions(req.Level)
	halfW := float64(req.Width) * tw / float64(s.tileSize) / 2
	halfH := float64(req.Height) * th / float64(s.tileSize) / 2
	return orb.Bound{
		Min: orb.Point{c[0] - halfW, c[1] - halfH},
		Max: orb.Point{c[0] + halfW, c[1] + halfH},
	}, nil
}

// Tiles lists the source keys covering the request.
func (s *Stitcher) Tiles(req Request) ([]tile.TileKey, orb.Bound, error) {
	region, err := s.Region(req)
	if err != nil {
		return nil, orb.Bound{}, err
	}
	keys := s.src.Profile().TilesInExtent(region, req.Level)
	if len(keys) == 0 {
		return nil, region, fmt.Errorf("%w: %s at level %d", ErrEmptyRegion, tile.FormatExtent(region), req.Level)
	}
	return keys, region, nil
}

// Stitch downloads the covering tiles and crops the mosaic to the region.
// Missing tiles are left transparent; a TileError is returned when none
// succeed or more than half fail.
func (s *Stitcher) Stitch(ctx context.Context, req Request) (*Result, error) {
	keys, region, err := s.Tiles(req)
	if err != nil {
		return nil, err
	}
	if err := mosaic.CheckSpan(keys, s.tileSize); err != nil {
		return nil, err
	}
	s.logger.Debug("stitch: fetching tiles", "source", s.src.Name(), "level", req.Level, "tiles", len(keys), "region", tile.FormatExtent(region))

	var (
		mu     sync.Mutex
		failed []FailedTile
	)
	images := make([]*image.RGBA, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, k := range keys {
		g.Go(func() error {
			img, err := s.src.CreateImage(gctx, k)
			if s.progress != nil {
				s.progress()
			}
			if err == nil && img == nil {
				err = source.ErrNoData
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Info("stitch: tile unavailable", "key", k.String(), "error", err)
				mu.Lock()
				failed = append(failed, FailedTile{Key: k.String(), Error: err.Error()})
				mu.Unlock()
				return nil
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		SuccessfulTiles: len(keys) - len(failed),
		TotalTiles:      len(keys),
		FailedTiles:     failed,
	}
	if result.SuccessfulTiles == 0 {
		return nil, &TileError{
			Message:     "No tiles could be downloaded successfully",
			FailedTiles: failed, TotalTiles: len(keys),
		}
	}
	if len(failed) > len(keys)/2 {
		return nil, &TileError{
			Message:         fmt.Sprintf("Too many tile download failures: %d/%d failed", len(failed), len(keys)),
			FailedTiles:     failed,
			SuccessfulTiles: result.SuccessfulTiles,
			TotalTiles:      len(keys),
		}
	}

	var size image.Rectangle
	for _, img := range images {
		if img != nil {
			size = img.Rect
			break
		}
	}
	b := mosaic.New(mosaic.WithLogger(s.logger))
	for i, k := range keys {
		img := images[i]
		if img == nil {
			img = image.NewRGBA(image.Rect(0, 0, size.Dx(), size.Dy()))
		}
		b.Add(tile.NewTileImage(img, k))
	}
	result.Image, err = b.BuildAndCrop(s.src.Profile().SRS(), region)
	if err != nil {
		return nil, err
	}
	return result, nil
}
