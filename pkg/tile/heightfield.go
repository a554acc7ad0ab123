package tile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// NoData marks a heightfield sample without a value.
const NoData float32 = -math.MaxFloat32

// Interpolation selects how a heightfield is sampled between posts.
type Interpolation int

const (
	InterpolationBilinear Interpolation = iota
	InterpolationNearest
)

// ParseInterpolation maps a config string to an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilinear":
		return InterpolationBilinear, nil
	case "nearest":
		return InterpolationNearest, nil
	}
	return 0, fmt.Errorf("unknown interpolation %q", s)
}

func (i Interpolation) String() string {
	if i == InterpolationNearest {
		return "nearest"
	}
	return "bilinear"
}

// HeightField is a regular grid of elevation posts. Heights is row-major and
// row 0 is the southernmost row; Origin is the position of post (0,0).
type HeightField struct {
	Columns   int
	Rows      int
	Heights   []float32
	Origin    orb.Point
	XInterval float64
	YInterval float64
}

// NewHeightField allocates a grid with every post set to fill.
func NewHeightField(columns, rows int, fill float32) *HeightField {
	h := &HeightField{
		Columns: columns,
		Rows:    rows,
		Heights: make([]float32, columns*rows),
	}
	if fill != 0 {
		for i := range h.Heights {
			h.Heights[i] = fill
		}
	}
	return h
}

func (h *HeightField) At(col, row int) float32 { return h.Heights[row*h.Columns+col] }

func (h *HeightField) Set(col, row int, v float32) { h.Heights[row*h.Columns+col] = v }

// SetExtent places the first and last posts on the corners of b.
func (h *HeightField) SetExtent(b orb.Bound) error {
	if h.Columns < 2 || h.Rows < 2 {
		return fmt.Errorf("%w: %dx%d posts", ErrInvalidHeightField, h.Columns, h.Rows)
	}
	if err := ValidateExtent(b); err != nil {
		return err
	}
	h.Origin = b.Min
	h.XInterval = (b.Max[0] - b.Min[0]) / float64(h.Columns-1)
	h.YInterval = (b.Max[1] - b.Min[1]) / float64(h.Rows-1)
	return nil
}

// Extent is the rectangle spanned by the posts.
func (h *HeightField) Extent() orb.Bound {
	return orb.Bound{
		Min: h.Origin,
		Max: orb.Point{
			h.Origin[0] + h.XInterval*float64(h.Columns-1),
			h.Origin[1] + h.YInterval*float64(h.Rows-1),
		},
	}
}

// Sample returns the height at x,y. Bilinear sampling falls back to the
// nearest post when a neighbour is NoData. ok is false outside the grid or
// when no valid post is available.
func (h *HeightField) Sample(x, y float64, interp Interpolation) (v float32, ok bool) {
	if h.XInterval <= 0 || h.YInterval <= 0 {
		return NoData, false
	}
	const eps = 1e-6
	c := (x - h.Origin[0]) / h.XInterval
	r := (y - h.Origin[1]) / h.YInterval
	maxC, maxR := float64(h.Columns-1), float64(h.Rows-1)
	if c < -eps || r < -eps || c > maxC+eps || r > maxR+eps {
		return NoData, false
	}
	c = math.Max(0, math.Min(maxC, c))
	r = math.Max(0, math.Min(maxR, r))

	nearest := h.At(int(math.Round(c)), int(math.Round(r)))
	if interp == InterpolationNearest {
		return nearest, nearest != NoData
	}

	c0, r0 := int(math.Floor(c)), int(math.Floor(r))
	c1, r1 := min(c0+1, h.Columns-1), min(r0+1, h.Rows-1)
	ll, lr := h.At(c0, r0), h.At(c1, r0)
	ul, ur := h.At(c0, r1), h.At(c1, r1)
	if ll == NoData || lr == NoData || ul == NoData || ur == NoData {
		return nearest, nearest != NoData
	}
	fc, fr := c-float64(c0), r-float64(r0)
	bottom := float64(ll)*(1-fc) + float64(lr)*fc
	top := float64(ul)*(1-fc) + float64(ur)*fc
	return float32(bottom*(1-fr) + top*fr), true
}

var heightFieldMagic = [4]byte{'H', 'F', 'L', '1'}

type heightFieldHeader struct {
	Magic     [4]byte
	Columns   uint32
	Rows      uint32
	OriginX   float64
	OriginY   float64
	XInterval float64
	YInterval float64
}

// EncodeHeightField serializes h for a tile cache.
func EncodeHeightField(h *HeightField) ([]byte, error) {
	var buf bytes.Buffer
	hdr := heightFieldHeader{
		Magic:     heightFieldMagic,
		Columns:   uint32(h.Columns),
		Rows:      uint32(h.Rows),
		OriginX:   h.Origin[0],
		OriginY:   h.Origin[1],
		XInterval: h.XInterval,
		YInterval: h.YInterval,
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, h.Heights); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeHeightField reverses EncodeHeightField.
func DecodeHeightField(data []byte) (*HeightField, error) {
	r := bytes.NewReader(data)
	var hdr heightFieldHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeightField, err)
	}
	if hdr.Magic != heightFieldMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidHeightField)
	}
	if posts := int64(hdr.Columns) * int64(hdr.Rows); r.Len()%4 != 0 || posts != int64(r.Len()/4) {
		return nil, fmt.Errorf("%w: %dx%d grid with %d payload bytes", ErrInvalidHeightField, hdr.Columns, hdr.Rows, r.Len())
	}
	h := &HeightField{
		Columns:   int(hdr.Columns),
		Rows:      int(hdr.Rows),
		Heights:   make([]float32, int(hdr.Columns)*int(hdr.Rows)),
		Origin:    orb.Point{hdr.OriginX, hdr.OriginY},
		XInterval: hdr.XInterval,
		YInterval: hdr.YInterval,
	}
	if err := binary.Read(r, binary.LittleEndian, h.Heights); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeightField, err)
	}
	return h, nil
}
