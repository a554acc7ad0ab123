package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileID is the profile-less address of a tile, usable as a map key.
type TileID struct {
	Level uint32
	X, Y  uint32
}

func (id TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Level, id.X, id.Y)
}

// ParseTileID parses the "z/x/y" form produced by String.
func ParseTileID(s string) (TileID, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return TileID{}, fmt.Errorf("%w: %q is not z/x/y", ErrInvalidKey, s)
	}
	var vals [3]uint32
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return TileID{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
		}
		vals[i] = uint32(v)
	}
	return TileID{Level: vals[0], X: vals[1], Y: vals[2]}, nil
}

// TileKey addresses one cell of a profile's grid.
type TileKey struct {
	Level uint32
	X, Y  uint32

	profile *Profile
}

// Profile returns the tiling scheme the key belongs to.
func (k TileKey) Profile() *Profile { return k.profile }

// Valid reports whether the key lies inside its profile's grid.
func (k TileKey) Valid() bool {
	if k.profile == nil || k.Level > MaxLevel {
		return false
	}
	wide, high := k.profile.NumTiles(k.Level)
	return k.X < wide && k.Y < high
}

// ID drops the profile.
func (k TileKey) ID() TileID { return TileID{Level: k.Level, X: k.X, Y: k.Y} }

func (k TileKey) String() string { return k.ID().String() }

// Extent returns the key's geographic rectangle in its profile's units.
func (k TileKey) Extent() orb.Bound {
	if k.profile == nil {
		return EmptyExtent()
	}
	tw, th := k.profile.TileDimensions(k.Level)
	minX := k.profile.extent.Min[0] + float64(k.X)*tw
	minY := k.profile.extent.Min[1] + float64(k.Y)*th
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + tw, minY + th},
	}
}

// Parent returns the key one level up; false at level 0.
func (k TileKey) Parent() (TileKey, bool) {
	if k.Level == 0 || k.profile == nil {
		return TileKey{}, false
	}
	return TileKey{Level: k.Level - 1, X: k.X / 2, Y: k.Y / 2, profile: k.profile}, true
}

// MapTile converts to XYZ (row 0 at the top) addressing.
func (k TileKey) MapTile() maptile.Tile {
	_, high := k.profile.NumTiles(k.Level)
	return maptile.New(k.X, high-1-k.Y, maptile.Zoom(k.Level))
}

// KeyForMapTile converts an XYZ tile into a key of p.
func KeyForMapTile(p *Profile, t maptile.Tile) (TileKey, error) {
	level := uint32(t.Z)
	if level > MaxLevel {
		return TileKey{}, fmt.Errorf("%w: level %d above %d", ErrInvalidKey, level, MaxLevel)
	}
	_, high := p.NumTiles(level)
	if t.Y >= high {
		return TileKey{}, fmt.Errorf("%w: xyz row %d at level %d", ErrInvalidKey, t.Y, level)
	}
	return p.Key(level, t.X, high-1-t.Y)
}
