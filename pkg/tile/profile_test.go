package tile

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalGeodeticGrid(t *testing.T) {
	p := GlobalGeodetic()

	wide, high := p.NumTiles(1)
	assert.Equal(t, uint32(4), wide)
	assert.Equal(t, uint32(2), high)

	key, err := p.Key(1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{-90, 0}}, key.Extent())

	key, err = p.Key(1, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{90, 0}, Max: orb.Point{180, 90}}, key.Extent())

	_, err = p.Key(1, 4, 0)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewProfileRejectsMalformed(t *testing.T) {
	_, err := NewProfile("flat", EPSG4326, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0, 10}}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = NewProfile("none", EPSG4326, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = ProfileByName("cube")
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestIntersectingTilesEquivalentProfile(t *testing.T) {
	p := GlobalGeodetic()
	key, err := p.Key(5, 10, 7)
	require.NoError(t, err)

	keys, err := p.IntersectingTiles(key)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID(), keys[0].ID())
	assert.Same(t, p, keys[0].Profile())
}

func TestIntersectingTilesAcrossProfiles(t *testing.T) {
	geo := GlobalGeodetic()
	merc := SphericalMercator()

	// 45 degree tile south-west of (-90, 45) maps onto two mercator rows at level 3.
	key, err := geo.Key(2, 1, 2)
	require.NoError(t, err)
	keys, err := merc.IntersectingTiles(key)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, TileID{Level: 3, X: 1, Y: 4}, keys[0].ID())
	assert.Equal(t, TileID{Level: 3, X: 1, Y: 5}, keys[1].ID())

	// north-west mercator quadrant falls inside the western geodetic level 0 tile.
	mkey, err := merc.Key(1, 0, 1)
	require.NoError(t, err)
	keys, err = geo.IntersectingTiles(mkey)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, TileID{Level: 0, X: 0, Y: 0}, keys[0].ID())
}

func TestIntersectingTilesInvalidKey(t *testing.T) {
	_, err := GlobalGeodetic().IntersectingTiles(TileKey{Level: 1})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMapTileRoundTrip(t *testing.T) {
	p := SphericalMercator()
	key, err := KeyForMapTile(p, maptile.New(3, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, TileID{Level: 2, X: 3, Y: 2}, key.ID())
	assert.Equal(t, maptile.New(3, 1, 2), key.MapTile())
}

func TestKeyAt(t *testing.T) {
	key, err := GlobalGeodetic().KeyAt(orb.Point{10, 45}, 2)
	require.NoError(t, err)
	assert.Equal(t, TileID{Level: 2, X: 4, Y: 3}, key.ID())

	parent, ok := key.Parent()
	require.True(t, ok)
	assert.Equal(t, TileID{Level: 1, X: 2, Y: 1}, parent.ID())
}

func TestParseTileID(t *testing.T) {
	id, err := ParseTileID("4/3/2")
	require.NoError(t, err)
	assert.Equal(t, TileID{Level: 4, X: 3, Y: 2}, id)

	_, err = ParseTileID("4/3")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestExtentHelpers(t *testing.T) {
	empty := EmptyExtent()
	assert.True(t, IsEmptyExtent(empty))
	assert.ErrorIs(t, ValidateExtent(empty), ErrInvalidExtent)

	a := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2, 2}}
	b := orb.Bound{Min: orb.Point{2, 0}, Max: orb.Point{4, 2}}
	assert.Equal(t, a, ExtendExtent(empty, a))
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4, 2}}, ExtendExtent(a, b))
	assert.False(t, Overlaps(a, b))
}

func TestTilesInExtent(t *testing.T) {
	p := GlobalGeodetic()

	// Straddles the four level-2 tiles around (0, 0).
	keys := p.TilesInExtent(orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}, 2)
	require.Len(t, keys, 4)
	assert.Equal(t, TileID{Level: 2, X: 3, Y: 1}, keys[0].ID())
	assert.Equal(t, TileID{Level: 2, X: 4, Y: 1}, keys[1].ID())
	assert.Equal(t, TileID{Level: 2, X: 3, Y: 2}, keys[2].ID())
	assert.Equal(t, TileID{Level: 2, X: 4, Y: 2}, keys[3].ID())

	// Edges that fall on tile boundaries do not pull in neighbours.
	keys = p.TilesInExtent(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{45, 45}}, 2)
	require.Len(t, keys, 1)
	assert.Equal(t, TileID{Level: 2, X: 4, Y: 2}, keys[0].ID())

	assert.Empty(t, p.TilesInExtent(orb.Bound{Min: orb.Point{200, 0}, Max: orb.Point{210, 10}}, 2))
}

func TestParseExtent(t *testing.T) {
	b, err := ParseExtent("-10, -5,10,5")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-10, -5}, Max: orb.Point{10, 5}}, b)

	_, err = ParseExtent("1,2,3")
	assert.ErrorIs(t, err, ErrInvalidExtent)
	b, err = ParseExtent("10,0,0,5")
	assert.ErrorIs(t, err, ErrInvalidExtent)
	assert.Equal(t, orb.Bound{}, b)
	_, err = ParseExtent("a,0,1,5")
	assert.ErrorIs(t, err, ErrInvalidExtent)
}
