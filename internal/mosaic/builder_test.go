package mosaic

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/geostitch/pkg/tile"
)

func solid(size int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func unitProfile(t *testing.T) *tile.Profile {
	t.Helper()
	p, err := tile.NewProfile("unit", tile.EPSG4326, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}, 2, 2)
	require.NoError(t, err)
	return p
}

var (
	red    = color.RGBA{255, 0, 0, 255}
	green  = color.RGBA{0, 255, 0, 255}
	blue   = color.RGBA{0, 0, 255, 255}
	yellow = color.RGBA{255, 255, 0, 255}
)

// fourTiles adds the 2x2 block at level 0 of the unit profile. Row 1 is the
// northern row.
func fourTiles(t *testing.T, b *Builder) {
	p := unitProfile(t)
	for _, tc := range []struct {
		x, y uint32
		c    color.RGBA
	}{
		{0, 0, red}, {1, 0, green}, {0, 1, blue}, {1, 1, yellow},
	} {
		key, err := p.Key(0, tc.x, tc.y)
		require.NoError(t, err)
		b.Add(tile.NewTileImage(solid(256, tc.c), key))
	}
}

func TestExtentEmpty(t *testing.T) {
	b := New()
	ext := b.Extent()
	assert.True(t, math.IsInf(ext.Min[0], 1))
	assert.True(t, math.IsInf(ext.Max[1], -1))
	assert.True(t, tile.IsEmptyExtent(ext))
}

func TestExtentUnion(t *testing.T) {
	b := New()
	b.Add(tile.TileImage{Image: solid(1, red), Extent: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}})
	b.Add(tile.TileImage{Image: solid(1, red), Extent: orb.Bound{Min: orb.Point{1, -1}, Max: orb.Point{3, 1}}})
	assert.Equal(t, orb.Bound{Min: orb.Point{0, -1}, Max: orb.Point{3, 2}}, b.Extent())

	b.Add(tile.TileImage{Image: solid(1, red), Extent: orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{11, 12}}})
	assert.Equal(t, orb.Bound{Min: orb.Point{0, -1}, Max: orb.Point{11, 12}}, b.Extent())
}

func TestBuildEmpty(t *testing.T) {
	img, err := New().Build()
	assert.NoError(t, err)
	assert.Nil(t, img)
}

func TestBuildPlacesTilesNorthUp(t *testing.T) {
	b := New()
	fourTiles(t, b)

	img, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 512, 512), img.Rect)

	// northern row on top
	assert.Equal(t, blue, img.RGBAAt(10, 10))
	assert.Equal(t, yellow, img.RGBAAt(300, 10))
	assert.Equal(t, red, img.RGBAAt(10, 300))
	assert.Equal(t, green, img.RGBAAt(511, 511))
}

func TestBuildSparseGrid(t *testing.T) {
	b := New()
	b.Add(tile.TileImage{Image: solid(4, red), TileX: 5, TileY: 7})
	b.Add(tile.TileImage{Image: solid(4, green), TileX: 7, TileY: 5})

	img, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 12), img.Rect)
	assert.Equal(t, red, img.RGBAAt(0, 0))
	assert.Equal(t, green, img.RGBAAt(11, 11))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(5, 5))
}

func TestBuildSizeMismatch(t *testing.T) {
	b := New()
	b.Add(tile.TileImage{Image: solid(4, red)})
	b.Add(tile.TileImage{Image: solid(8, red), TileX: 1})

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrTileSizeMismatch)
}

func TestBuildTooLarge(t *testing.T) {
	b := New()
	b.Add(tile.TileImage{Image: solid(256, red)})
	b.Add(tile.TileImage{Image: solid(256, red), TileX: 100, TileY: 100})

	_, err := b.Build()
	assert.ErrorIs(t, err, ErrMosaicTooLarge)
}

func TestBuildAndCropInnerHalf(t *testing.T) {
	b := New()
	fourTiles(t, b)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}, b.Extent())

	dst := orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{1.5, 1.5}}
	g, err := b.BuildAndCrop(tile.EPSG4326, dst)
	require.NoError(t, err)
	assert.Equal(t, dst, g.Extent)
	assert.Equal(t, dst, g.Requested)
	assert.Equal(t, 256, g.Width())
	assert.Equal(t, 256, g.Height())
	assert.Equal(t, blue, g.Image.RGBAAt(0, 0))
	assert.Equal(t, green, g.Image.RGBAAt(255, 255))
}

func TestBuildAndCropEmpty(t *testing.T) {
	g, err := New().BuildAndCrop(tile.EPSG4326, orb.Bound{Max: orb.Point{1, 1}})
	assert.NoError(t, err)
	assert.Nil(t, g)
}

func TestReset(t *testing.T) {
	b := New()
	fourTiles(t, b)
	assert.Equal(t, 4, b.Len())
	b.Reset()
	assert.Zero(t, b.Len())
}

func TestCheckSpan(t *testing.T) {
	p := tile.GlobalGeodetic()
	corner := func(x, y uint32) tile.TileKey {
		k, err := p.Key(20, x, y)
		require.NoError(t, err)
		return k
	}

	assert.NoError(t, CheckSpan(nil, 256))
	assert.NoError(t, CheckSpan([]tile.TileKey{corner(0, 0), corner(3, 3)}, 256))

	// the canvas spans the gap between the keys
	far := []tile.TileKey{corner(0, 0), corner(100, 100)}
	assert.ErrorIs(t, CheckSpan(far, 256), ErrMosaicTooLarge)

	wide := []tile.TileKey{corner(0, 0), corner(1<<20, 0)}
	assert.ErrorIs(t, CheckSpan(wide, 256), ErrMosaicTooLarge)
}
