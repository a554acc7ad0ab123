package raster

import (
	"github.com/paulmach/orb"

	"github.com/kiesman99/geostitch/pkg/tile"
)

// CompositeHeightField resamples sources onto a columns x rows grid spanning
// dst. For every post the first source that covers it wins; posts no source
// covers stay tile.NoData.
func CompositeHeightField(dst orb.Bound, columns, rows int, sources []*tile.HeightField, interp tile.Interpolation) (*tile.HeightField, error) {
	return composite(dst, columns, rows, sources, interp, nil)
}

// ReprojectHeightField is CompositeHeightField for a grid laid out in dstSRS
// over sources in srcSRS. Posts stay evenly spaced in dstSRS; each one is
// transformed into srcSRS before it is sampled.
func ReprojectHeightField(dst orb.Bound, dstSRS, srcSRS tile.SRS, columns, rows int, sources []*tile.HeightField, interp tile.Interpolation) (*tile.HeightField, error) {
	if dstSRS.Equal(srcSRS) {
		return CompositeHeightField(dst, columns, rows, sources, interp)
	}
	return composite(dst, columns, rows, sources, interp, func(p orb.Point) (orb.Point, error) {
		return dstSRS.Transform(p, srcSRS)
	})
}

func composite(dst orb.Bound, columns, rows int, sources []*tile.HeightField, interp tile.Interpolation, project func(orb.Point) (orb.Point, error)) (*tile.HeightField, error) {
	out := tile.NewHeightField(columns, rows, tile.NoData)
	if err := out.SetExtent(dst); err != nil {
		return nil, err
	}
	for r := 0; r < rows; r++ {
		y := out.Origin[1] + float64(r)*out.YInterval
		for c := 0; c < columns; c++ {
			pt := orb.Point{out.Origin[0] + float64(c)*out.XInterval, y}
			if project != nil {
				var err error
				if pt, err = project(pt); err != nil {
					return nil, err
				}
			}
			for _, hf := range sources {
				if v, ok := hf.Sample(pt[0], pt[1], interp); ok {
					out.Set(c, r, v)
					break
				}
			}
		}
	}
	return out, nil
}

// FillNoData copies samples from src into every NoData post of dst and
// reports how many posts remain empty.
func FillNoData(dst, src *tile.HeightField, interp tile.Interpolation) (remaining int) {
	for r := 0; r < dst.Rows; r++ {
		y := dst.Origin[1] + float64(r)*dst.YInterval
		for c := 0; c < dst.Columns; c++ {
			if dst.At(c, r) != tile.NoData {
				continue
			}
			x := dst.Origin[0] + float64(c)*dst.XInterval
			if v, ok := src.Sample(x, y, interp); ok {
				dst.Set(c, r, v)
				continue
			}
			remaining++
		}
	}
	return remaining
}
