// Package raster holds the pixel level routines the mosaic pipeline delegates
// to: cropping an image between extents, resampling it, and compositing
// heightfields onto a destination grid.
package raster

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"

	"github.com/kiesman99/geostitch/pkg/tile"
)

// ErrNoOverlap is returned when the crop window misses the source image.
var ErrNoOverlap = errors.New("raster: crop extent does not overlap image")

const pixelEpsilon = 1e-6

// Crop cuts the part of img covering dst, where img spans src. The window is
// snapped outward to whole pixels; the returned extent is what the cropped
// pixels actually cover.
func Crop(img *image.RGBA, src, dst orb.Bound) (*image.RGBA, orb.Bound, error) {
	if err := tile.ValidateExtent(src); err != nil {
		return nil, orb.Bound{}, err
	}
	if err := tile.ValidateExtent(dst); err != nil {
		return nil, orb.Bound{}, err
	}
	if !tile.Overlaps(src, dst) {
		return nil, orb.Bound{}, fmt.Errorf("%w: %s outside %s", ErrNoOverlap, tile.FormatExtent(dst), tile.FormatExtent(src))
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	xres := (src.Max[0] - src.Min[0]) / float64(w)
	yres := (src.Max[1] - src.Min[1]) / float64(h)

	// pixel rows run from the top (max Y) down
	x0 := clamp(int(math.Floor((dst.Min[0]-src.Min[0])/xres+pixelEpsilon)), 0, w-1)
	x1 := clamp(int(math.Ceil((dst.Max[0]-src.Min[0])/xres-pixelEpsilon)), x0+1, w)
	y0 := clamp(int(math.Floor((src.Max[1]-dst.Max[1])/yres+pixelEpsilon)), 0, h-1)
	y1 := clamp(int(math.Ceil((src.Max[1]-dst.Min[1])/yres-pixelEpsilon)), y0+1, h)

	actual := orb.Bound{
		Min: orb.Point{src.Min[0] + float64(x0)*xres, src.Max[1] - float64(y1)*yres},
		Max: orb.Point{src.Min[0] + float64(x1)*xres, src.Max[1] - float64(y0)*yres},
	}

	out := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(out, out.Rect, img, img.Rect.Min.Add(image.Pt(x0, y0)), draw.Src)
	return out, actual, nil
}

// CropGeoImage crops g to dst, which must be expressed in g's SRS. The result
// remembers dst as its requested extent.
func CropGeoImage(g *tile.GeoImage, dst orb.Bound) (*tile.GeoImage, error) {
	img, actual, err := Crop(g.Image, g.Extent, dst)
	if err != nil {
		return nil, err
	}
	return &tile.GeoImage{Image: img, SRS: g.SRS, Extent: actual, Requested: dst}, nil
}

// Resize resamples img to width x height with bilinear filtering.
func Resize(img *image.RGBA, width, height int) *image.RGBA {
	if img.Rect.Dx() == width && img.Rect.Dy() == height {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(out, out.Rect, img, img.Rect, draw.Src, nil)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
