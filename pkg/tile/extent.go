package tile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// EmptyExtent returns the "no data" sentinel: +Inf minimums and -Inf maximums,
// so that folding any real extent into it yields that extent.
func EmptyExtent() orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
}

// IsEmptyExtent reports whether b encloses no area.
func IsEmptyExtent(b orb.Bound) bool {
	return !(b.Min[0] < b.Max[0] && b.Min[1] < b.Max[1])
}

// ValidateExtent returns ErrInvalidExtent unless minX<maxX and minY<maxY.
func ValidateExtent(b orb.Bound) error {
	if IsEmptyExtent(b) || math.IsInf(b.Min[0], 0) || math.IsInf(b.Max[0], 0) ||
		math.IsInf(b.Min[1], 0) || math.IsInf(b.Max[1], 0) {
		return fmt.Errorf("%w: %s", ErrInvalidExtent, FormatExtent(b))
	}
	return nil
}

// ExtendExtent is the componentwise min/max of a and b.
func ExtendExtent(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Min(a.Min[0], b.Min[0]), math.Min(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Max(a.Max[0], b.Max[0]), math.Max(a.Max[1], b.Max[1])},
	}
}

// IntersectExtent returns the overlap of a and b, which may be empty.
func IntersectExtent(a, b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
}

// Overlaps reports whether a and b share area; touching edges do not count.
func Overlaps(a, b orb.Bound) bool {
	return !IsEmptyExtent(IntersectExtent(a, b))
}

// FormatExtent renders b as "minx,miny,maxx,maxy".
func FormatExtent(b orb.Bound) string {
	return fmt.Sprintf("%.17g,%.17g,%.17g,%.17g", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// ParseExtent reads "minx,miny,maxx,maxy" and validates the result.
func ParseExtent(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: %q is not minx,miny,maxx,maxy", ErrInvalidExtent, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: %q: %v", ErrInvalidExtent, s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if err := ValidateExtent(b); err != nil {
		return orb.Bound{}, err
	}
	return b, nil
}
