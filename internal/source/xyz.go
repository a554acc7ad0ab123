package source

import (
	"context"
	"fmt"
	"image"

	"github.com/kiesman99/geostitch/pkg/tile"
)

// XYZ serves imagery from a slippy-map URL template.
type XYZ struct {
	*httpFetcher
}

var _ TileSource = (*XYZ)(nil)

// NewXYZ creates a source for a {z}/{x}/{y} URL template.
func NewXYZ(opts HTTPOptions) (*XYZ, error) {
	f, err := newHTTPFetcher(opts)
	if err != nil {
		return nil, err
	}
	return &XYZ{httpFetcher: f}, nil
}

func (s *XYZ) CreateImage(ctx context.Context, key tile.TileKey) (*image.RGBA, error) {
	data, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	img, err := tile.DecodeImage(data)
	if err != nil {
		s.blacklist.Add(key.ID())
		return nil, fmt.Errorf("source %q: %s: %w", s.name, key, err)
	}
	return img, nil
}

func (s *XYZ) CreateHeightField(context.Context, tile.TileKey) (*tile.HeightField, error) {
	return nil, ErrNotSupported
}
