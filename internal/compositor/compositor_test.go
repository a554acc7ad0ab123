package compositor

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/geostitch/internal/mosaic"
	"github.com/kiesman99/geostitch/internal/source/sourcetest"
	"github.com/kiesman99/geostitch/pkg/tile"
)

var (
	red    = color.RGBA{255, 0, 0, 255}
	green  = color.RGBA{0, 255, 0, 255}
	blue   = color.RGBA{0, 0, 255, 255}
	yellow = color.RGBA{255, 255, 0, 255}
)

func profile(t *testing.T, minXY, maxXY float64, n uint32) *tile.Profile {
	t.Helper()
	p, err := tile.NewProfile("test", tile.EPSG4326, orb.Bound{Min: orb.Point{minXY, minXY}, Max: orb.Point{maxXY, maxXY}}, n, n)
	require.NoError(t, err)
	return p
}

// fixture returns a source with a 2x2 grid of 4px tiles over 0..4 and a key
// spanning 1..3, which straddles all four of them.
func fixture(t *testing.T) (*sourcetest.Fake, tile.TileKey) {
	t.Helper()
	src := sourcetest.New("grid", profile(t, 0, 4, 2))
	src.SetSolid(tile.TileID{X: 0, Y: 0}, 4, red)
	src.SetSolid(tile.TileID{X: 1, Y: 0}, 4, green)
	src.SetSolid(tile.TileID{X: 0, Y: 1}, 4, blue)
	src.SetSolid(tile.TileID{X: 1, Y: 1}, 4, yellow)

	key, err := profile(t, 1, 3, 1).Key(0, 0, 0)
	require.NoError(t, err)
	return src, key
}

func TestMosaicImages(t *testing.T) {
	src, key := fixture(t)

	g, err := New().MosaicImages(context.Background(), key, src)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, int64(4), src.Calls())
	assert.Equal(t, 8, g.Width())
	assert.Equal(t, 8, g.Height())
	assert.Equal(t, tile.EPSG4326, g.SRS)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 4}}, g.Extent)
	assert.Equal(t, key.Extent(), g.Requested)
	assert.Equal(t, blue, g.Image.RGBAAt(0, 0))
	assert.Equal(t, green, g.Image.RGBAAt(7, 7))
}

func TestMosaicImagesNoIntersectingTiles(t *testing.T) {
	src, _ := fixture(t)
	key, err := profile(t, 10, 12, 1).Key(0, 0, 0)
	require.NoError(t, err)

	g, err := New().MosaicImages(context.Background(), key, src)
	assert.NoError(t, err)
	assert.Nil(t, g)
	assert.Zero(t, src.Calls())
}

func TestMosaicImagesAllOrNothing(t *testing.T) {
	src, key := fixture(t)
	src.SetError(tile.TileID{X: 1, Y: 1}, errors.New("boom"))

	g, err := New(WithConcurrency(1)).MosaicImages(context.Background(), key, src)
	assert.NoError(t, err)
	assert.Nil(t, g)
}

func TestMosaicImagesMissingTileIsNoData(t *testing.T) {
	src := sourcetest.New("sparse", profile(t, 0, 4, 2))
	src.SetSolid(tile.TileID{X: 0, Y: 0}, 4, red)
	key, err := profile(t, 1, 3, 1).Key(0, 0, 0)
	require.NoError(t, err)

	g, err := New().MosaicImages(context.Background(), key, src)
	assert.NoError(t, err)
	assert.Nil(t, g)
}

func TestMosaicImagesCanceled(t *testing.T) {
	src, key := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := New().MosaicImages(ctx, key, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, g)
}

func TestMosaicImagesSizeMismatchIsDefect(t *testing.T) {
	src, key := fixture(t)
	src.SetSolid(tile.TileID{X: 1, Y: 1}, 8, yellow)

	_, err := New().MosaicImages(context.Background(), key, src)
	assert.Error(t, err)
}

func TestMosaicImagesTooLargeFailsBeforeFetching(t *testing.T) {
	src, key := fixture(t)

	_, err := New(WithTileSize(6000)).MosaicImages(context.Background(), key, src)
	assert.ErrorIs(t, err, mosaic.ErrMosaicTooLarge)
	assert.Zero(t, src.Calls())
}

func TestMosaicImagesMalformedInput(t *testing.T) {
	_, key := fixture(t)
	_, err := New().MosaicImages(context.Background(), key, sourcetest.New("bad", &tile.Profile{}))
	assert.ErrorIs(t, err, tile.ErrInvalidProfile)

	src, _ := fixture(t)
	_, err = New().MosaicImages(context.Background(), tile.TileKey{}, src)
	assert.ErrorIs(t, err, tile.ErrInvalidKey)
}

func TestCompositeHeightFields(t *testing.T) {
	src, key := fixture(t)
	for i, id := range []tile.TileID{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}} {
		k, err := src.Profile().Key(0, id.X, id.Y)
		require.NoError(t, err)
		src.SetHeightField(id, sourcetest.Flat(k, 3, 3, float32(i+1)))
	}

	hf, err := New().CompositeHeightFields(context.Background(), key, src, tile.InterpolationBilinear)
	require.NoError(t, err)
	require.NotNil(t, hf)
	assert.Equal(t, 3, hf.Columns)
	assert.Equal(t, 3, hf.Rows)
	assert.Equal(t, key.Extent(), hf.Extent())
	assert.Equal(t, float32(1), hf.At(0, 0))
	assert.Equal(t, float32(2), hf.At(2, 0))
	assert.Equal(t, float32(3), hf.At(0, 2))
	assert.Equal(t, float32(4), hf.At(2, 2))
}

func TestCompositeHeightFieldsAllOrNothing(t *testing.T) {
	src, key := fixture(t)
	k, err := src.Profile().Key(0, 0, 0)
	require.NoError(t, err)
	src.SetHeightField(k.ID(), sourcetest.Flat(k, 3, 3, 1))

	hf, err := New().CompositeHeightFields(context.Background(), key, src, tile.InterpolationNearest)
	assert.NoError(t, err)
	assert.Nil(t, hf)
}

func TestCompositeHeightFieldsAcrossSRS(t *testing.T) {
	src := sourcetest.New("mercator", tile.SphericalMercator())
	key, err := tile.GlobalGeodetic().Key(2, 4, 2)
	require.NoError(t, err)

	keys, err := src.Profile().IntersectingTiles(key)
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	// Every source tile holds its northing in km.
	for _, k := range keys {
		hf := tile.NewHeightField(9, 9, 0)
		require.NoError(t, hf.SetExtent(k.Extent()))
		for r := 0; r < hf.Rows; r++ {
			for c := 0; c < hf.Columns; c++ {
				hf.Set(c, r, float32((hf.Origin[1]+float64(r)*hf.YInterval)/1000))
			}
		}
		src.SetHeightField(k.ID(), hf)
	}

	hf, err := New().CompositeHeightFields(context.Background(), key, src, tile.InterpolationBilinear)
	require.NoError(t, err)
	require.NotNil(t, hf)
	assert.Equal(t, key.Extent(), hf.Extent())
	for r := 0; r < hf.Rows; r++ {
		lat := hf.Origin[1] + float64(r)*hf.YInterval
		p, err := tile.EPSG4326.Transform(orb.Point{hf.Origin[0], lat}, tile.EPSG3857)
		require.NoError(t, err)
		assert.InDelta(t, p[1]/1000, hf.At(0, r), 0.05, "row %d at latitude %.2f", r, lat)
	}
}
