// Package mosaic assembles same-sized tiles into one raster by grid position
// and crops the result to an arbitrary extent.
package mosaic

import (
	"errors"
	"fmt"
	"image"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"

	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/raster"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// MaxPixels caps the size of an assembled mosaic.
const MaxPixels = 10000 * 10000

var (
	// ErrTileSizeMismatch is returned when tiles in one mosaic differ in pixel size.
	ErrTileSizeMismatch = errors.New("mosaic: tiles differ in pixel dimensions")
	// ErrMosaicTooLarge is returned when the assembled raster would exceed MaxPixels.
	ErrMosaicTooLarge = errors.New("mosaic: requested image size too large")
)

// Builder accumulates tile images and stitches them into one raster. Tile
// rows grow northward, so pixel rows are placed in reverse row order.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	tiles  []tile.TileImage
	logger logger.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used to report empty builds.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New returns an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{logger: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends a tile. Size consistency is checked when the mosaic is built.
func (b *Builder) Add(t tile.TileImage) {
	b.tiles = append(b.tiles, t)
}

// Len returns the number of tiles added since the last Reset.
func (b *Builder) Len() int { return len(b.tiles) }

// Reset drops all accumulated tiles.
func (b *Builder) Reset() {
	b.tiles = b.tiles[:0]
}

// Extent returns the union of all tile extents, or tile.EmptyExtent when
// nothing has been added.
func (b *Builder) Extent() orb.Bound {
	ext := tile.EmptyExtent()
	for _, t := range b.tiles {
		ext = tile.ExtendExtent(ext, t.Extent)
	}
	return ext
}

// CheckSpan returns ErrMosaicTooLarge when the grid spanned by keys, at
// tileSize pixels per tile, would exceed MaxPixels. It lets callers refuse a
// request before fetching anything.
func CheckSpan(keys []tile.TileKey, tileSize int) error {
	if len(keys) == 0 {
		return nil
	}
	minX, maxX := keys[0].X, keys[0].X
	minY, maxY := keys[0].Y, keys[0].Y
	for _, k := range keys[1:] {
		minX, maxX = min(minX, k.X), max(maxX, k.X)
		minY, maxY = min(minY, k.Y), max(maxY, k.Y)
	}
	width := int64(maxX-minX+1) * int64(tileSize)
	height := int64(maxY-minY+1) * int64(tileSize)
	if width > MaxPixels || height > MaxPixels || width*height > MaxPixels {
		return fmt.Errorf("%w: %d tiles spanning %dx%d pixels", ErrMosaicTooLarge, len(keys), width, height)
	}
	return nil
}

// Build places every tile at its grid offset. It returns nil with no error
// when the builder is empty.
func (b *Builder) Build() (*image.RGBA, error) {
	if len(b.tiles) == 0 {
		b.logger.Warn("mosaic: no tiles to build")
		return nil, nil
	}

	tw, th := b.tiles[0].Image.Rect.Dx(), b.tiles[0].Image.Rect.Dy()
	minX, minY := b.tiles[0].TileX, b.tiles[0].TileY
	maxX, maxY := minX, minY
	for _, t := range b.tiles[1:] {
		if w, h := t.Image.Rect.Dx(), t.Image.Rect.Dy(); w != tw || h != th {
			b.logger.Error("mosaic: tile size mismatch", "tile_x", t.TileX, "tile_y", t.TileY, "want", fmt.Sprintf("%dx%d", tw, th), "got", fmt.Sprintf("%dx%d", w, h))
			return nil, fmt.Errorf("%w: tile %d,%d is %dx%d, want %dx%d", ErrTileSizeMismatch, t.TileX, t.TileY, w, h, tw, th)
		}
		minX, maxX = min(minX, t.TileX), max(maxX, t.TileX)
		minY, maxY = min(minY, t.TileY), max(maxY, t.TileY)
	}

	tilesWide := int(maxX-minX) + 1
	tilesHigh := int(maxY-minY) + 1
	width, height := tilesWide*tw, tilesHigh*th
	if int64(width)*int64(height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrMosaicTooLarge, width, height)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for _, t := range b.tiles {
		off := image.Pt(int(t.TileX-minX)*tw, int(maxY-t.TileY)*th)
		draw.Draw(out, image.Rectangle{Min: off, Max: off.Add(t.Image.Rect.Size())}, t.Image, t.Image.Rect.Min, draw.Src)
	}
	return out, nil
}

// BuildAndCrop builds the mosaic and crops it from its aggregate extent to
// dst. The returned GeoImage has Requested set to dst and Extent set to the
// pixel-snapped area it actually covers.
func (b *Builder) BuildAndCrop(srs tile.SRS, dst orb.Bound) (*tile.GeoImage, error) {
	img, err := b.Build()
	if err != nil || img == nil {
		return nil, err
	}
	full, err := tile.NewGeoImage(img, srs, b.Extent())
	if err != nil {
		return nil, err
	}
	return raster.CropGeoImage(full, dst)
}
