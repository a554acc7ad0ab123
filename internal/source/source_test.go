package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/geostitch/pkg/tile"
)

func mercatorKey(t *testing.T, z, x, y uint32) tile.TileKey {
	t.Helper()
	k, err := tile.SphericalMercator().Key(z, x, y)
	require.NoError(t, err)
	return k
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuildURL(t *testing.T) {
	// key row 2 of 4 at level 2 is xyz row 1
	key := mercatorKey(t, 2, 3, 2)
	assert.Equal(t, "https://tiles/2/3/1.png", BuildURL("https://tiles/{z}/{x}/{y}.png", key))
	assert.Equal(t, "https://tiles/2/3/2.png", BuildURL("https://tiles/{z}/{x}/{-y}.png", key))
	assert.Equal(t, "https://b.tiles/2/3/1", BuildURL("https://{s}.tiles/{z}/{x}/{y}", key))
}

func TestBlacklist(t *testing.T) {
	b := NewBlacklist()
	id := tile.TileID{Level: 1, X: 1, Y: 0}
	assert.False(t, b.Contains(id))
	b.Add(id)
	assert.True(t, b.Contains(id))
	assert.Equal(t, 1, b.Len())
	b.Clear()
	assert.False(t, b.Contains(id))
}

func TestCoverage(t *testing.T) {
	c := Coverage{MinLevel: 1, MaxLevel: 5}
	assert.False(t, c.Contains(mercatorKey(t, 0, 0, 0)))
	assert.True(t, c.Contains(mercatorKey(t, 3, 0, 0)))
	assert.False(t, c.Contains(mercatorKey(t, 6, 0, 0)))

	// north east quadrant only
	c = Coverage{Extents: []orb.Bound{{Min: orb.Point{10, 10}, Max: orb.Point{20, 20}}}}
	assert.True(t, c.Contains(mercatorKey(t, 1, 1, 1)))
	assert.False(t, c.Contains(mercatorKey(t, 1, 0, 0)))
}

func TestXYZCreateImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})
	body := pngBytes(t, img)

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("X-Api-Key"))
		if strings.HasSuffix(r.URL.Path, "/1/0/0.png") {
			w.Write(body)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, err := NewXYZ(HTTPOptions{
		Name:        "osm",
		URLTemplate: srv.URL + "/{z}/{x}/{y}.png",
		Headers:     map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	assert.Same(t, tile.SphericalMercator(), s.Profile())

	got, err := s.CreateImage(context.Background(), mercatorKey(t, 1, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, got.RGBAAt(0, 0))
	assert.Equal(t, "secret", gotUA.Load())

	missing := mercatorKey(t, 1, 1, 1)
	_, err = s.CreateImage(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNoData)
	assert.True(t, s.Blacklist().Contains(missing.ID()))

	_, err = s.CreateHeightField(context.Background(), missing)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestXYZServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewXYZ(HTTPOptions{Name: "broken", URLTemplate: srv.URL + "/{z}/{x}/{y}"})
	require.NoError(t, err)

	key := mercatorKey(t, 0, 0, 0)
	_, err = s.CreateImage(context.Background(), key)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
	assert.False(t, s.Blacklist().Contains(key.ID()))
}

func TestXYZRequiresTemplate(t *testing.T) {
	_, err := NewXYZ(HTTPOptions{Name: "empty"})
	assert.Error(t, err)
}

func TestTerrariumRoundTrip(t *testing.T) {
	hf := tile.NewHeightField(2, 2, 0)
	hf.Set(0, 0, -10.5)
	hf.Set(1, 0, 0)
	hf.Set(0, 1, 1234.25)
	hf.Set(1, 1, tile.NoData)

	img := EncodeTerrarium(hf)
	// south row is at the bottom of the image
	assert.Equal(t, uint8(255), img.RGBAAt(0, 1).A)
	assert.Equal(t, uint8(0), img.RGBAAt(1, 0).A)

	got, err := DecodeTerrarium(img)
	require.NoError(t, err)
	assert.Equal(t, float32(-10.5), got.At(0, 0))
	assert.Equal(t, float32(0), got.At(1, 0))
	assert.Equal(t, float32(1234.25), got.At(0, 1))
	assert.Equal(t, tile.NoData, got.At(1, 1))
}

func TestTerrariumCreateHeightField(t *testing.T) {
	hf := tile.NewHeightField(4, 4, 100)
	body := pngBytes(t, EncodeTerrarium(hf))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	s, err := NewTerrarium(HTTPOptions{Name: "dem", URLTemplate: srv.URL + "/{z}/{x}/{y}.png"})
	require.NoError(t, err)

	key := mercatorKey(t, 1, 1, 1)
	got, err := s.CreateHeightField(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Columns)
	assert.Equal(t, float32(100), got.At(3, 3))
	assert.InDelta(t, key.Extent().Max[0], got.Extent().Max[0], 1e-6)

	_, err = s.CreateImage(context.Background(), key)
	assert.ErrorIs(t, err, ErrNotSupported)
}
