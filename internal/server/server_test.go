package server

import (
	"bytes"
	"encoding/json"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/geostitch/internal/api"
	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/layer"
	"github.com/kiesman99/geostitch/internal/maps"
	"github.com/kiesman99/geostitch/internal/source/sourcetest"
	"github.com/kiesman99/geostitch/pkg/tile"
)

var red = color.RGBA{255, 0, 0, 255}

type fixture struct {
	server  *httptest.Server
	m       *maps.Map
	imagery *sourcetest.Fake
	dem     *sourcetest.Fake
	key     tile.TileKey
}

// setupTestServer serves a geodetic map with one image and one elevation
// layer. XYZ tile 1/2/0 is the only tile with data.
func setupTestServer(t *testing.T) *fixture {
	t.Helper()

	c, err := cache.NewMemory(100, 0)
	require.NoError(t, err)
	m := maps.New(maps.Options{Name: "test"}, maps.WithCache(c))

	key, err := tile.GlobalGeodetic().Key(1, 2, 1)
	require.NoError(t, err)

	imagery := sourcetest.New("imagery", tile.GlobalGeodetic())
	imagery.SetSolid(key.ID(), 256, red)
	dem := sourcetest.New("dem", tile.GlobalGeodetic())
	dem.SetHeightField(key.ID(), sourcetest.Flat(key, 5, 5, 100))

	settings := func(bin string) *cache.Settings {
		return &cache.Settings{Cache: c, Bin: bin, Policy: cache.Policy{Usage: cache.UsageReadWrite}}
	}
	require.NoError(t, m.AddLayer(layer.NewImageLayer(layer.Options{Name: "imagery"},
		layer.Deps{Source: imagery, Cache: settings("imagery")})))
	require.NoError(t, m.AddLayer(layer.NewElevationLayer(layer.Options{Name: "dem"},
		tile.InterpolationBilinear, layer.Deps{Source: dem, Cache: settings("dem")})))

	apiServer := NewServer("2.0.0-test", m)
	srv := httptest.NewServer(NewRouter(apiServer, 30*time.Second))
	t.Cleanup(srv.Close)

	return &fixture{server: srv, m: m, imagery: imagery, dem: dem, key: key}
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthEndpoint(t *testing.T) {
	f := setupTestServer(t)

	resp := f.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health api.HealthResponse
	decodeJSON(t, resp, &health)
	assert.Equal(t, api.Healthy, health.Status)
	require.NotNil(t, health.Version)
	assert.Equal(t, "2.0.0-test", *health.Version)
	require.NotNil(t, health.Revision)
	assert.Equal(t, f.m.Revision(), *health.Revision)
	assert.WithinDuration(t, time.Now(), health.Timestamp, time.Minute)
}

func TestHealthUnhealthyAfterClose(t *testing.T) {
	f := setupTestServer(t)
	require.NoError(t, f.m.Close())

	resp := f.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var health api.HealthResponse
	decodeJSON(t, resp, &health)
	assert.Equal(t, api.Unhealthy, health.Status)
}

func TestLegacyHealthRedirect(t *testing.T) {
	f := setupTestServer(t)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/api/v1/health", resp.Header.Get("Location"))
}

func TestListLayersFollowsMap(t *testing.T) {
	f := setupTestServer(t)

	var layers api.LayersResponse
	decodeJSON(t, f.get(t, "/api/v1/layers"), &layers)
	assert.Equal(t, "test", layers.Map)
	assert.Equal(t, "global-geodetic", layers.Profile)
	require.Len(t, layers.Layers, 2)
	assert.Equal(t, "imagery", layers.Layers[0].Name)
	assert.Equal(t, api.LayerKindImage, layers.Layers[0].Kind)
	assert.Equal(t, "dem", layers.Layers[1].Name)
	assert.Equal(t, api.LayerKindElevation, layers.Layers[1].Kind)
	require.NotNil(t, layers.Layers[0].CachePolicy)
	assert.Equal(t, "read-write", *layers.Layers[0].CachePolicy)

	extra := layer.NewImageLayer(layer.Options{Name: "labels"}, layer.Deps{})
	require.NoError(t, f.m.AddLayer(extra))

	decodeJSON(t, f.get(t, "/api/v1/layers"), &layers)
	require.Len(t, layers.Layers, 3)
	assert.Equal(t, "labels", layers.Layers[2].Name)
	assert.Equal(t, f.m.Revision(), layers.Revision)
}

func TestGetImageTile(t *testing.T) {
	f := setupTestServer(t)

	resp := f.get(t, "/api/v1/tiles/imagery/1/2/0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0,0,90,90", resp.Header.Get("X-Extent"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	r, g, b, a := img.At(5, 5).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})
}

func TestGetElevationTileAsTerrarium(t *testing.T) {
	f := setupTestServer(t)

	resp := f.get(t, "/api/v1/tiles/dem/1/2/0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	_, err := png.Decode(resp.Body)
	require.NoError(t, err)
}

func TestGetTileNoData(t *testing.T) {
	f := setupTestServer(t)

	resp := f.get(t, "/api/v1/tiles/imagery/1/0/0")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestGetTileErrors(t *testing.T) {
	f := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown layer", "/api/v1/tiles/roads/1/2/0", http.StatusNotFound, "LAYER_NOT_FOUND"},
		{"malformed level", "/api/v1/tiles/imagery/one/2/0", http.StatusBadRequest, string(api.VALIDATIONERROR)},
		{"outside grid", "/api/v1/tiles/imagery/1/9/0", http.StatusBadRequest, string(api.VALIDATIONERROR)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.get(t, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body api.ErrorResponse
			decodeJSON(t, resp, &body)
			assert.Equal(t, tt.code, body.Error)
			assert.NotNil(t, body.RequestId)
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := setupTestServer(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/tiles/roads/1/2/0", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body api.ErrorResponse
	decodeJSON(t, resp, &body)
	require.NotNil(t, body.RequestId)
	assert.Equal(t, "abc-123", *body.RequestId)
}

func TestCreateMosaic(t *testing.T) {
	f := setupTestServer(t)

	resp := f.post(t, "/api/v1/mosaic", `{"layer":"imagery","z":1,"x":2,"y":0,"crop":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0,0,90,90", resp.Header.Get("X-Extent"))
	assert.Equal(t, "0,0,90,90", resp.Header.Get("X-Requested-Extent"))
	assert.Equal(t, "EPSG:4326", resp.Header.Get("X-SRS"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestCreateMosaicErrors(t *testing.T) {
	f := setupTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"invalid json", `{"layer":`, http.StatusBadRequest, "INVALID_JSON"},
		{"missing layer", `{"z":1,"x":2,"y":0}`, http.StatusBadRequest, string(api.VALIDATIONERROR)},
		{"unknown layer", `{"layer":"roads","z":1,"x":2,"y":0}`, http.StatusNotFound, "LAYER_NOT_FOUND"},
		{"elevation layer", `{"layer":"dem","z":1,"x":2,"y":0}`, http.StatusBadRequest, "UNSUPPORTED_LAYER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/api/v1/mosaic", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body api.ErrorResponse
			decodeJSON(t, resp, &body)
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestCreateMosaicNoTiles(t *testing.T) {
	f := setupTestServer(t)

	resp := f.post(t, "/api/v1/mosaic", `{"layer":"imagery","z":1,"x":0,"y":0}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGetElevation(t *testing.T) {
	f := setupTestServer(t)

	resp := f.get(t, "/api/v1/elevation/1/2/0?columns=3&rows=4")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var elev api.ElevationResponse
	decodeJSON(t, resp, &elev)
	assert.Equal(t, "1/2/1", elev.Key)
	assert.Equal(t, 3, elev.Columns)
	assert.Equal(t, 4, elev.Rows)
	assert.Equal(t, [4]float64{0, 0, 90, 90}, elev.Extent)
	require.Len(t, elev.Heights, 12)
	for _, h := range elev.Heights {
		assert.InDelta(t, 100, h, 1e-3)
	}
}

func TestGetElevationValidation(t *testing.T) {
	f := setupTestServer(t)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/elevation/1/2/0?columns=1").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/elevation/1/2/0?rows=abc").StatusCode)
	assert.Equal(t, http.StatusNoContent, f.get(t, "/api/v1/elevation/1/0/0").StatusCode)
}

func TestCoverageTracksCache(t *testing.T) {
	f := setupTestServer(t)

	var cov api.CoverageResponse
	decodeJSON(t, f.get(t, "/api/v1/coverage/1/2/0"), &cov)
	assert.Equal(t, "1/2/1", cov.Key)
	assert.False(t, cov.Cached)

	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/tiles/imagery/1/2/0").StatusCode)
	decodeJSON(t, f.get(t, "/api/v1/coverage/1/2/0"), &cov)
	assert.False(t, cov.Cached, "elevation layer still uncached")

	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/tiles/dem/1/2/0").StatusCode)
	decodeJSON(t, f.get(t, "/api/v1/coverage/1/2/0"), &cov)
	assert.True(t, cov.Cached)

	decodeJSON(t, f.get(t, "/api/v1/coverage/1/0/0"), &cov)
	assert.False(t, cov.Cached)

	// Tiles the sources report no data for do not count against coverage.
	empty, err := tile.GlobalGeodetic().Key(1, 0, 1)
	require.NoError(t, err)
	f.imagery.SetNoData(empty.ID())
	f.dem.SetNoData(empty.ID())
	decodeJSON(t, f.get(t, "/api/v1/coverage/1/0/0"), &cov)
	assert.True(t, cov.Cached)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestServer(t)
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/tiles/imagery/1/2/0").StatusCode)

	resp := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("geostitch_cache_lookups_total")))
}

func TestCORSPreflight(t *testing.T) {
	f := setupTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/v1/mosaic", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
