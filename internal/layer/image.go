package layer

import (
	"context"
	"image"

	"github.com/kiesman99/geostitch/internal/raster"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// ImageLayer serves imagery tiles in the requester's profile.
type ImageLayer struct {
	*TerrainLayer
}

var _ Image = (*ImageLayer)(nil)

func NewImageLayer(opts Options, deps Deps) *ImageLayer {
	return &ImageLayer{TerrainLayer: newTerrainLayer(opts, deps)}
}

func (l *ImageLayer) AsTerrainLayer() (Terrain, bool)     { return l, true }
func (l *ImageLayer) AsImageLayer() (Image, bool)         { return l, true }
func (l *ImageLayer) AsElevationLayer() (Elevation, bool) { return nil, false }

var imageCodec = codec[*tile.GeoImage]{
	encode: func(g *tile.GeoImage) ([]byte, error) { return tile.EncodePNG(g.Image) },
	decode: func(key tile.TileKey, data []byte) (*tile.GeoImage, error) {
		img, err := tile.DecodeImage(data)
		if err != nil {
			return nil, err
		}
		return keyImage(img, key)
	},
	clone: func(g *tile.GeoImage) *tile.GeoImage {
		out := *g
		out.Image = image.NewRGBA(g.Image.Rect)
		copy(out.Image.Pix, g.Image.Pix)
		return &out
	},
}

// CreateImage returns the layer's image for key, TileSize pixels square, or
// nil when the layer has no data there.
func (l *ImageLayer) CreateImage(ctx context.Context, key tile.TileKey) (*tile.GeoImage, error) {
	return load(ctx, l.TerrainLayer, key, imageCodec, func(ctx context.Context) (*tile.GeoImage, error) {
		return l.createFromSource(ctx, key)
	})
}

func (l *ImageLayer) createFromSource(ctx context.Context, key tile.TileKey) (*tile.GeoImage, error) {
	if sk, ok := sourceKey(l.src, key); ok {
		img, err := l.src.CreateImage(ctx, sk)
		if err != nil || img == nil {
			return nil, err
		}
		return keyImage(raster.Resize(img, l.TileSize(), l.TileSize()), key)
	}

	m, err := l.compositor.MosaicImages(ctx, key, l.src)
	if err != nil || m == nil {
		return nil, err
	}
	cropped, err := raster.CropGeoImage(m, m.Requested)
	if err != nil {
		return nil, err
	}
	return keyImage(raster.Resize(cropped.Image, l.TileSize(), l.TileSize()), key)
}

func keyImage(img *image.RGBA, key tile.TileKey) (*tile.GeoImage, error) {
	var srs tile.SRS
	if p := key.Profile(); p != nil {
		srs = p.SRS()
	}
	return tile.NewGeoImage(img, srs, key.Extent())
}
