package layer

import (
	"context"

	"github.com/kiesman99/geostitch/pkg/tile"
)

// ElevationLayer serves heightfields in the requester's profile.
type ElevationLayer struct {
	*TerrainLayer
	interp tile.Interpolation
}

var _ Elevation = (*ElevationLayer)(nil)

func NewElevationLayer(opts Options, interp tile.Interpolation, deps Deps) *ElevationLayer {
	return &ElevationLayer{TerrainLayer: newTerrainLayer(opts, deps), interp: interp}
}

func (l *ElevationLayer) AsTerrainLayer() (Terrain, bool)     { return l, true }
func (l *ElevationLayer) AsImageLayer() (Image, bool)         { return nil, false }
func (l *ElevationLayer) AsElevationLayer() (Elevation, bool) { return l, true }

var heightFieldCodec = codec[*tile.HeightField]{
	encode: tile.EncodeHeightField,
	decode: func(key tile.TileKey, data []byte) (*tile.HeightField, error) {
		hf, err := tile.DecodeHeightField(data)
		if err != nil {
			return nil, err
		}
		return hf, hf.SetExtent(key.Extent())
	},
	clone: func(hf *tile.HeightField) *tile.HeightField {
		out := *hf
		out.Heights = append([]float32(nil), hf.Heights...)
		return &out
	},
}

// CreateHeightField returns the layer's heightfield for key, or nil when
// the layer has no data there.
func (l *ElevationLayer) CreateHeightField(ctx context.Context, key tile.TileKey) (*tile.HeightField, error) {
	return load(ctx, l.TerrainLayer, key, heightFieldCodec, func(ctx context.Context) (*tile.HeightField, error) {
		if sk, ok := sourceKey(l.src, key); ok {
			hf, err := l.src.CreateHeightField(ctx, sk)
			if err != nil || hf == nil {
				return nil, err
			}
			return hf, hf.SetExtent(key.Extent())
		}
		return l.compositor.CompositeHeightFields(ctx, key, l.src, l.interp)
	})
}
