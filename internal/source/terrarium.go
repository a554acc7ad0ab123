package source

import (
	"context"
	"fmt"
	"image"

	"github.com/kiesman99/geostitch/pkg/tile"
)

// Terrarium serves elevation from PNG tiles using the Terrarium encoding,
// height = (R*256 + G + B/256) - 32768.
type Terrarium struct {
	*httpFetcher
}

var _ TileSource = (*Terrarium)(nil)

// NewTerrarium creates an elevation source decoding terrarium PNG tiles.
func NewTerrarium(opts HTTPOptions) (*Terrarium, error) {
	f, err := newHTTPFetcher(opts)
	if err != nil {
		return nil, err
	}
	return &Terrarium{httpFetcher: f}, nil
}

func (s *Terrarium) CreateImage(context.Context, tile.TileKey) (*image.RGBA, error) {
	return nil, ErrNotSupported
}

func (s *Terrarium) CreateHeightField(ctx context.Context, key tile.TileKey) (*tile.HeightField, error) {
	data, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	img, err := tile.DecodeImage(data)
	if err != nil {
		s.blacklist.Add(key.ID())
		return nil, fmt.Errorf("source %q: %s: %w", s.name, key, err)
	}
	hf, err := DecodeTerrarium(img)
	if err != nil {
		return nil, err
	}
	if err := hf.SetExtent(key.Extent()); err != nil {
		return nil, err
	}
	return hf, nil
}

// DecodeTerrarium converts an encoded image to a heightfield. Transparent
// pixels become tile.NoData. Image row 0 is north, heightfield row 0 south.
func DecodeTerrarium(img *image.RGBA) (*tile.HeightField, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("%w: terrarium tile %dx%d", tile.ErrInvalidHeightField, w, h)
	}
	hf := tile.NewHeightField(w, h, 0)
	for y := 0; y < h; y++ {
		row := h - 1 - y
		for x := 0; x < w; x++ {
			c := img.RGBAAt(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			if c.A == 0 {
				hf.Set(x, row, tile.NoData)
				continue
			}
			v := float64(c.R)*256 + float64(c.G) + float64(c.B)/256 - 32768
			hf.Set(x, row, float32(v))
		}
	}
	return hf, nil
}

// EncodeTerrarium is the inverse of DecodeTerrarium.
func EncodeTerrarium(hf *tile.HeightField) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, hf.Columns, hf.Rows))
	for row := 0; row < hf.Rows; row++ {
		y := hf.Rows - 1 - row
		for x := 0; x < hf.Columns; x++ {
			h := hf.At(x, row)
			i := img.PixOffset(x, y)
			if h == tile.NoData {
				continue
			}
			v := float64(h) + 32768
			v = max(0, min(65535.99, v))
			iv := int(v)
			img.Pix[i] = uint8(iv >> 8)
			img.Pix[i+1] = uint8(iv & 0xFF)
			img.Pix[i+2] = uint8((v - float64(iv)) * 256)
			img.Pix[i+3] = 255
		}
	}
	return img
}
