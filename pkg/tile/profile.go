package tile

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// MaxLevel is the deepest level a profile will address.
const MaxLevel = 30

// gridEpsilon absorbs floating point noise when snapping extents to tile edges.
const gridEpsilon = 1e-9

const mercatorHalfWorld = 20037508.342789244 // 2 * pi * 6378137 / 2

// Profile is a tiling scheme: a spatial reference, its full extent and the
// number of tiles at level 0. Each level doubles the tile count on both axes.
// Tile rows grow northward, so row 0 touches the profile's minimum Y.
type Profile struct {
	name      string
	srs       SRS
	extent    orb.Bound
	tilesWide uint32
	tilesHigh uint32
}

var (
	globalGeodetic = &Profile{
		name:      "global-geodetic",
		srs:       EPSG4326,
		extent:    orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}},
		tilesWide: 2,
		tilesHigh: 1,
	}
	sphericalMercator = &Profile{
		name:      "spherical-mercator",
		srs:       EPSG3857,
		extent:    orb.Bound{Min: orb.Point{-mercatorHalfWorld, -mercatorHalfWorld}, Max: orb.Point{mercatorHalfWorld, mercatorHalfWorld}},
		tilesWide: 1,
		tilesHigh: 1,
	}
)

// GlobalGeodetic is the EPSG:4326 profile with two tiles at level 0.
func GlobalGeodetic() *Profile { return globalGeodetic }

// SphericalMercator is the EPSG:3857 profile used by XYZ web tiles.
func SphericalMercator() *Profile { return sphericalMercator }

// NewProfile builds a custom profile and checks it is well formed.
func NewProfile(name string, srs SRS, extent orb.Bound, tilesWide, tilesHigh uint32) (*Profile, error) {
	p := &Profile{name: name, srs: srs, extent: extent, tilesWide: tilesWide, tilesHigh: tilesHigh}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ProfileByName resolves the well-known profile names used in configuration.
func ProfileByName(name string) (*Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "global-geodetic", "geodetic", "epsg:4326", "wgs84":
		return globalGeodetic, nil
	case "spherical-mercator", "mercator", "epsg:3857", "epsg:900913":
		return sphericalMercator, nil
	}
	return nil, fmt.Errorf("%w: unknown profile %q", ErrInvalidProfile, name)
}

func (p *Profile) validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil profile", ErrInvalidProfile)
	}
	if p.srs.IsZero() {
		return fmt.Errorf("%w: %s has no spatial reference", ErrInvalidProfile, p.name)
	}
	if p.tilesWide == 0 || p.tilesHigh == 0 {
		return fmt.Errorf("%w: %s has no tiles at level 0", ErrInvalidProfile, p.name)
	}
	if err := ValidateExtent(p.extent); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProfile, p.name, err)
	}
	return nil
}

func (p *Profile) Name() string      { return p.name }
func (p *Profile) SRS() SRS          { return p.srs }
func (p *Profile) Extent() orb.Bound { return p.extent }

func (p *Profile) String() string {
	return fmt.Sprintf("%s(%s)", p.name, p.srs)
}

// NumTiles returns the grid size at level.
func (p *Profile) NumTiles(level uint32) (wide, high uint32) {
	return p.tilesWide << level, p.tilesHigh << level
}

// TileDimensions returns the width and height of one tile at level in SRS units.
func (p *Profile) TileDimensions(level uint32) (width, height float64) {
	wide, high := p.NumTiles(level)
	width = (p.extent.Max[0] - p.extent.Min[0]) / float64(wide)
	height = (p.extent.Max[1] - p.extent.Min[1]) / float64(high)
	return width, height
}

// IsEquivalentTo reports whether both profiles produce identical tile grids.
func (p *Profile) IsEquivalentTo(o *Profile) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	return p.srs.Equal(o.srs) && p.extent == o.extent &&
		p.tilesWide == o.tilesWide && p.tilesHigh == o.tilesHigh
}

// Key returns the tile at level/x/y, failing when it lies outside the grid.
func (p *Profile) Key(level, x, y uint32) (TileKey, error) {
	if err := p.validate(); err != nil {
		return TileKey{}, err
	}
	if level > MaxLevel {
		return TileKey{}, fmt.Errorf("%w: level %d above %d", ErrInvalidKey, level, MaxLevel)
	}
	wide, high := p.NumTiles(level)
	if x >= wide || y >= high {
		return TileKey{}, fmt.Errorf("%w: %d/%d/%d in %s", ErrInvalidKey, level, x, y, p)
	}
	return TileKey{Level: level, X: x, Y: y, profile: p}, nil
}

// KeyAt returns the tile at level containing the given longitude/latitude.
func (p *Profile) KeyAt(lonLat orb.Point, level uint32) (TileKey, error) {
	pt, err := EPSG4326.Transform(lonLat, p.srs)
	if err != nil {
		return TileKey{}, err
	}
	if pt[0] < p.extent.Min[0] || pt[0] > p.extent.Max[0] || pt[1] < p.extent.Min[1] || pt[1] > p.extent.Max[1] {
		return TileKey{}, fmt.Errorf("%w: point %v outside %s", ErrInvalidKey, lonLat, p)
	}
	wide, high := p.NumTiles(level)
	tw, th := p.TileDimensions(level)
	x := clampIndex(math.Floor((pt[0]-p.extent.Min[0])/tw), wide)
	y := clampIndex(math.Floor((pt[1]-p.extent.Min[1])/th), high)
	return p.Key(level, x, y)
}

// LevelForTileWidth returns the level whose tile width is closest to width.
func (p *Profile) LevelForTileWidth(width float64) uint32 {
	if width <= 0 || math.IsInf(width, 0) || math.IsNaN(width) {
		return 0
	}
	level0, _ := p.TileDimensions(0)
	lvl := math.Round(math.Log2(level0 / width))
	switch {
	case lvl < 0:
		return 0
	case lvl > MaxLevel:
		return MaxLevel
	}
	return uint32(lvl)
}

// IntersectingTiles returns the tiles of p that cover key. For an equivalent
// profile that is the key itself; otherwise the key extent is transformed into
// p's reference, clipped to p's extent and covered at the level whose tile
// width best matches the key.
func (p *Profile) IntersectingTiles(key TileKey) ([]TileKey, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	if key.profile.IsEquivalentTo(p) {
		k, err := p.Key(key.Level, key.X, key.Y)
		if err != nil {
			return nil, err
		}
		return []TileKey{k}, nil
	}

	ext, err := key.profile.srs.TransformBound(key.Extent(), p.srs)
	if err != nil {
		return nil, err
	}
	return p.TilesInExtent(ext, p.LevelForTileWidth(ext.Max[0]-ext.Min[0])), nil
}

// TilesInExtent returns the keys at level covering ext, which is given in
// p's reference and clipped to p's extent. Keys are ordered south to north,
// west to east.
func (p *Profile) TilesInExtent(ext orb.Bound, level uint32) []TileKey {
	ext = IntersectExtent(ext, p.extent)
	if IsEmptyExtent(ext) || level > MaxLevel {
		return nil
	}

	wide, high := p.NumTiles(level)
	tw, th := p.TileDimensions(level)
	xmin := clampIndex(math.Floor((ext.Min[0]-p.extent.Min[0])/tw+gridEpsilon), wide)
	xmax := clampIndex(math.Ceil((ext.Max[0]-p.extent.Min[0])/tw-gridEpsilon)-1, wide)
	ymin := clampIndex(math.Floor((ext.Min[1]-p.extent.Min[1])/th+gridEpsilon), high)
	ymax := clampIndex(math.Ceil((ext.Max[1]-p.extent.Min[1])/th-gridEpsilon)-1, high)

	keys := make([]TileKey, 0, int(xmax-xmin+1)*int(ymax-ymin+1))
	for y := ymin; y <= ymax; y++ {
		for x := xmin; x <= xmax; x++ {
			keys = append(keys, TileKey{Level: level, X: x, Y: y, profile: p})
		}
	}
	return keys
}

func clampIndex(v float64, n uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v > float64(n-1) {
		return n - 1
	}
	return uint32(v)
}
