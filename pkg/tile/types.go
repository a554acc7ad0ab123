package tile

import (
	"image"

	"github.com/paulmach/orb"
)

// DefaultTileSize is the pixel width and height of a web tile.
const DefaultTileSize = 256

// GeoImage is an image pinned to a rectangle of a spatial reference.
// Extent is what the pixels actually cover. Requested is the extent the
// caller asked for, which for a mosaic is usually smaller than Extent.
type GeoImage struct {
	Image     *image.RGBA
	SRS       SRS
	Extent    orb.Bound
	Requested orb.Bound
}

// NewGeoImage checks the extent and pixel buffer before wrapping them.
func NewGeoImage(img *image.RGBA, srs SRS, extent orb.Bound) (*GeoImage, error) {
	if err := ValidateExtent(extent); err != nil {
		return nil, err
	}
	if img == nil || img.Rect.Empty() {
		return nil, ErrInvalidExtent
	}
	return &GeoImage{Image: img, SRS: srs, Extent: extent, Requested: extent}, nil
}

func (g *GeoImage) Width() int  { return g.Image.Rect.Dx() }
func (g *GeoImage) Height() int { return g.Image.Rect.Dy() }

// PixelSize returns the ground size of one pixel.
func (g *GeoImage) PixelSize() (x, y float64) {
	return (g.Extent.Max[0] - g.Extent.Min[0]) / float64(g.Width()),
		(g.Extent.Max[1] - g.Extent.Min[1]) / float64(g.Height())
}

// TileImage is one source tile waiting to be placed into a mosaic.
type TileImage struct {
	Image  *image.RGBA
	TileX  uint32
	TileY  uint32
	Extent orb.Bound
}

// NewTileImage tags img with the grid position and extent of key.
func NewTileImage(img *image.RGBA, key TileKey) TileImage {
	return TileImage{
		Image:  img,
		TileX:  key.X,
		TileY:  key.Y,
		Extent: key.Extent(),
	}
}
