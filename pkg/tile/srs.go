package tile

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// maxMercatorLat is the latitude where spherical mercator becomes square.
const maxMercatorLat = 85.05112877980659

// SRS identifies a spatial reference system by its EPSG code.
type SRS struct {
	code string
}

var (
	// EPSG4326 is WGS84 longitude/latitude in degrees
	EPSG4326 = SRS{code: "EPSG:4326"}
	// EPSG3857 is spherical (web) mercator in meters
	EPSG3857 = SRS{code: "EPSG:3857"}
)

// ParseSRS accepts EPSG codes and a few common aliases.
func ParseSRS(s string) (SRS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "epsg:4326", "4326", "wgs84", "geographic":
		return EPSG4326, nil
	case "epsg:3857", "3857", "epsg:900913", "900913", "spherical-mercator", "mercator":
		return EPSG3857, nil
	}
	return SRS{}, fmt.Errorf("%w: %q", ErrUnknownSRS, s)
}

// Code returns the EPSG code, e.g. "EPSG:4326".
func (s SRS) Code() string { return s.code }

func (s SRS) String() string { return s.code }

// IsZero reports whether the SRS was never set.
func (s SRS) IsZero() bool { return s.code == "" }

// IsGeographic reports whether coordinates are in degrees.
func (s SRS) IsGeographic() bool { return s == EPSG4326 }

// Equal reports whether both references describe the same system.
func (s SRS) Equal(o SRS) bool { return s.code == o.code }

// Transform converts a point from s into to.
func (s SRS) Transform(p orb.Point, to SRS) (orb.Point, error) {
	switch {
	case s.Equal(to):
		return p, nil
	case s == EPSG4326 && to == EPSG3857:
		p[1] = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p[1]))
		return project.WGS84.ToMercator(p), nil
	case s == EPSG3857 && to == EPSG4326:
		return project.Mercator.ToWGS84(p), nil
	}
	return p, fmt.Errorf("%w: %s to %s", ErrUnsupportedTransform, s, to)
}

// TransformBound converts all four corners of b and returns their bound.
func (s SRS) TransformBound(b orb.Bound, to SRS) (orb.Bound, error) {
	if s.Equal(to) {
		return b, nil
	}
	out := EmptyExtent()
	for _, corner := range []orb.Point{b.Min, b.Max, b.LeftTop(), b.RightBottom()} {
		p, err := s.Transform(corner, to)
		if err != nil {
			return orb.Bound{}, err
		}
		out = ExtendExtent(out, orb.Bound{Min: p, Max: p})
	}
	return out, nil
}
