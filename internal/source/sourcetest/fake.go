// Package sourcetest provides an in-memory TileSource for tests.
package sourcetest

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/pkg/tile"
)

// Fake serves rasters registered ahead of time. Unregistered tiles answer
// source.ErrNoData.
type Fake struct {
	name    string
	profile *tile.Profile

	mu      sync.Mutex
	images  map[tile.TileID]*image.RGBA
	heights map[tile.TileID]*tile.HeightField
	errs    map[tile.TileID]error
	noData  map[tile.TileID]bool

	blacklist *source.Blacklist
	calls     atomic.Int64
}

var _ source.TileSource = (*Fake)(nil)

// New returns a fake with no tiles.
func New(name string, p *tile.Profile) *Fake {
	return &Fake{
		name:      name,
		profile:   p,
		images:    make(map[tile.TileID]*image.RGBA),
		heights:   make(map[tile.TileID]*tile.HeightField),
		errs:      make(map[tile.TileID]error),
		noData:    make(map[tile.TileID]bool),
		blacklist: source.NewBlacklist(),
	}
}

func (f *Fake) Name() string                 { return f.name }
func (f *Fake) Profile() *tile.Profile       { return f.profile }
func (f *Fake) Blacklist() *source.Blacklist { return f.blacklist }

// Calls counts CreateImage and CreateHeightField invocations.
func (f *Fake) Calls() int64 { return f.calls.Load() }

func (f *Fake) SetImage(id tile.TileID, img *image.RGBA) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[id] = img
}

// SetSolid registers a size x size image filled with c.
func (f *Fake) SetSolid(id tile.TileID, size int, c color.RGBA) {
	f.SetImage(id, Solid(size, c))
}

func (f *Fake) SetHeightField(id tile.TileID, hf *tile.HeightField) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heights[id] = hf
}

// SetError makes every fetch of id fail with err.
func (f *Fake) SetError(id tile.TileID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

// SetNoData makes HasData report false for id.
func (f *Fake) SetNoData(id tile.TileID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noData[id] = true
}

func (f *Fake) HasData(key tile.TileKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.noData[key.ID()]
}

func (f *Fake) CreateImage(ctx context.Context, key tile.TileKey) (*image.RGBA, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key.ID()]; err != nil {
		return nil, err
	}
	img, ok := f.images[key.ID()]
	if !ok {
		return nil, source.ErrNoData
	}
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out, nil
}

func (f *Fake) CreateHeightField(ctx context.Context, key tile.TileKey) (*tile.HeightField, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[key.ID()]; err != nil {
		return nil, err
	}
	hf, ok := f.heights[key.ID()]
	if !ok {
		return nil, source.ErrNoData
	}
	out := *hf
	out.Heights = append([]float32(nil), hf.Heights...)
	return &out, nil
}

// Solid returns a size x size image filled with c.
func Solid(size int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// Flat returns a columns x rows heightfield of constant height h spanning key.
func Flat(key tile.TileKey, columns, rows int, h float32) *tile.HeightField {
	hf := tile.NewHeightField(columns, rows, h)
	_ = hf.SetExtent(key.Extent())
	return hf
}
