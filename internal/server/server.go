package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/paulmach/orb/maptile"

	"github.com/kiesman99/geostitch/internal/api"
	"github.com/kiesman99/geostitch/internal/compositor"
	"github.com/kiesman99/geostitch/internal/layer"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/internal/maps"
	"github.com/kiesman99/geostitch/internal/mosaic"
	"github.com/kiesman99/geostitch/internal/raster"
	"github.com/kiesman99/geostitch/internal/source"
	"github.com/kiesman99/geostitch/pkg/tile"
)

const (
	defaultElevationPosts = 33
	maxElevationPosts     = 1024
)

// Server implements api.ServerInterface over a live Map.
type Server struct {
	startTime  time.Time
	version    string
	m          *maps.Map
	compositor *compositor.Compositor
	logger     logger.Logger

	mu    sync.Mutex
	frame maps.Frame
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCompositor sets the compositor used by the mosaic endpoint.
func WithCompositor(c *compositor.Compositor) Option {
	return func(s *Server) { s.compositor = c }
}

// NewServer creates a new server instance
func NewServer(version string, m *maps.Map, opts ...Option) *Server {
	s := &Server{
		startTime: time.Now(),
		version:   version,
		m:         m,
		logger:    logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.compositor == nil {
		s.compositor = compositor.New(compositor.WithLogger(s.logger))
	}
	s.frame.Attach(m)
	return s
}

// snapshot returns a frame that is current with the map. The returned copy
// is owned by the caller.
func (s *Server) snapshot() maps.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame.NeedsSync() {
		s.frame.Sync()
	}
	return s.frame
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	f := s.snapshot()
	uptime := int(time.Since(s.startTime).Seconds())
	revision := f.Revision()

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
		Revision:  &revision,
	}
	status := http.StatusOK
	if !f.Valid() {
		response.Status = api.Unhealthy
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}

// ListLayers describes the layers of the current frame, bottom-most first.
func (s *Server) ListLayers(w http.ResponseWriter, r *http.Request) {
	f := s.snapshot()
	resp := api.LayersResponse{
		Map:      s.m.Options().Name,
		Profile:  s.m.Profile().Name(),
		Revision: f.Revision(),
		Layers:   make([]api.LayerInfo, 0, len(f.Layers())),
	}
	for _, l := range f.Layers() {
		resp.Layers = append(resp.Layers, layerInfo(l))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func layerInfo(l layer.Layer) api.LayerInfo {
	info := api.LayerInfo{Uid: l.UID().String(), Name: l.Name(), Kind: api.LayerKindOther, Enabled: true}
	if _, ok := l.AsImageLayer(); ok {
		info.Kind = api.LayerKindImage
	} else if _, ok := l.AsElevationLayer(); ok {
		info.Kind = api.LayerKindElevation
	}
	t, ok := l.AsTerrainLayer()
	if !ok {
		return info
	}
	info.Enabled = t.Enabled()
	if lvl, set := t.MinLevel(); set {
		info.MinLevel = &lvl
	}
	if mx, ok := t.(interface{ MaxLevel() (uint32, bool) }); ok {
		if lvl, set := mx.MaxLevel(); set {
			info.MaxLevel = &lvl
		}
	}
	if src := t.TileSource(); src != nil {
		name := src.Profile().Name()
		info.SourceProfile = &name
	}
	if cs := t.CacheSettings(); cs != nil {
		policy := cs.Policy.Usage.String()
		info.CachePolicy = &policy
	}
	return info
}

// GetTile renders one tile of a layer. Image layers answer with their PNG,
// elevation layers with a terrarium-encoded PNG.
func (s *Server) GetTile(w http.ResponseWriter, r *http.Request, name string, z, x, y uint32) {
	requestID := requestIDFrom(r)

	key, err := tile.KeyForMapTile(s.m.Profile(), maptile.New(x, y, maptile.Zoom(z)))
	if err != nil {
		s.writeValidationErrorResponse(w, "key", err.Error(), &requestID)
		return
	}
	f := s.snapshot()
	l, ok := findLayer(f, name)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "LAYER_NOT_FOUND",
			fmt.Sprintf("layer %q is not in the map", name), &requestID, nil)
		return
	}

	var (
		data   []byte
		extent string
	)
	if img, ok := l.AsImageLayer(); ok {
		g, err := img.CreateImage(r.Context(), key)
		if err != nil {
			s.handleError(w, err, &requestID)
			return
		}
		if g == nil {
			s.writeNoContent(w, requestID)
			return
		}
		if data, err = tile.EncodePNG(g.Image); err != nil {
			s.handleError(w, err, &requestID)
			return
		}
		extent = tile.FormatExtent(g.Extent)
	} else if elev, ok := l.AsElevationLayer(); ok {
		hf, err := elev.CreateHeightField(r.Context(), key)
		if err != nil {
			s.handleError(w, err, &requestID)
			return
		}
		if hf == nil {
			s.writeNoContent(w, requestID)
			return
		}
		if data, err = tile.EncodePNG(source.EncodeTerrarium(hf)); err != nil {
			s.handleError(w, err, &requestID)
			return
		}
		extent = tile.FormatExtent(key.Extent())
	} else {
		s.writeErrorResponse(w, http.StatusBadRequest, "UNSUPPORTED_LAYER",
			fmt.Sprintf("layer %q does not produce tiles", name), &requestID, nil)
		return
	}

	w.Header().Set("X-Extent", extent)
	s.writePNG(w, data, requestID)
}

// CreateMosaic assembles the source tiles behind one map tile of an image
// layer, bypassing the layer cache. The pixel extent and the requested
// extent are returned in headers.
func (s *Server) CreateMosaic(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req api.CreateMosaicJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", &requestID, nil)
		return
	}
	if req.Layer == "" {
		s.writeValidationErrorResponse(w, "layer", "layer is required", &requestID)
		return
	}
	key, err := tile.KeyForMapTile(s.m.Profile(), maptile.New(req.X, req.Y, maptile.Zoom(req.Z)))
	if err != nil {
		s.writeValidationErrorResponse(w, "key", err.Error(), &requestID)
		return
	}

	f := s.snapshot()
	l, ok := findLayer(f, req.Layer)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "LAYER_NOT_FOUND",
			fmt.Sprintf("layer %q is not in the map", req.Layer), &requestID, nil)
		return
	}
	img, ok := l.AsImageLayer()
	if !ok || img.TileSource() == nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "UNSUPPORTED_LAYER",
			fmt.Sprintf("layer %q has no image source", req.Layer), &requestID, nil)
		return
	}

	g, err := s.compositor.MosaicImages(r.Context(), key, img.TileSource())
	if err != nil {
		s.handleError(w, err, &requestID)
		return
	}
	if g == nil {
		s.writeNoContent(w, requestID)
		return
	}
	if req.Crop != nil && *req.Crop {
		if g, err = raster.CropGeoImage(g, g.Requested); err != nil {
			s.handleError(w, err, &requestID)
			return
		}
	}
	data, err := tile.EncodePNG(g.Image)
	if err != nil {
		s.handleError(w, err, &requestID)
		return
	}

	w.Header().Set("X-Extent", tile.FormatExtent(g.Extent))
	w.Header().Set("X-Requested-Extent", tile.FormatExtent(g.Requested))
	w.Header().Set("X-SRS", g.SRS.String())
	s.writePNG(w, data, requestID)
}

// GetElevation samples the map's elevation layers onto a regular grid.
func (s *Server) GetElevation(w http.ResponseWriter, r *http.Request, z, x, y uint32, params api.GetElevationParams) {
	requestID := requestIDFrom(r)

	cols := defaultElevationPosts
	if params.Columns != nil {
		cols = *params.Columns
	}
	rows := cols
	if params.Rows != nil {
		rows = *params.Rows
	}
	if cols < 2 || rows < 2 || cols > maxElevationPosts || rows > maxElevationPosts {
		s.writeValidationErrorResponse(w, "columns",
			fmt.Sprintf("columns and rows must be between 2 and %d", maxElevationPosts), &requestID)
		return
	}
	key, err := tile.KeyForMapTile(s.m.Profile(), maptile.New(x, y, maptile.Zoom(z)))
	if err != nil {
		s.writeValidationErrorResponse(w, "key", err.Error(), &requestID)
		return
	}

	f := s.snapshot()
	hf, err := f.PopulateHeightField(r.Context(), key, cols, rows)
	if err != nil {
		s.handleError(w, err, &requestID)
		return
	}
	if hf == nil {
		s.writeNoContent(w, requestID)
		return
	}
	ext := hf.Extent()
	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusOK, api.ElevationResponse{
		Key:     key.String(),
		Columns: hf.Columns,
		Rows:    hf.Rows,
		Extent:  [4]float64{ext.Min[0], ext.Min[1], ext.Max[0], ext.Max[1]},
		Heights: hf.Heights,
		NoData:  tile.NoData,
	})
}

// GetCoverage reports whether the map cache already holds the tile.
func (s *Server) GetCoverage(w http.ResponseWriter, r *http.Request, z, x, y uint32) {
	requestID := requestIDFrom(r)

	key, err := tile.KeyForMapTile(s.m.Profile(), maptile.New(x, y, maptile.Zoom(z)))
	if err != nil {
		s.writeValidationErrorResponse(w, "key", err.Error(), &requestID)
		return
	}
	f := s.snapshot()
	s.writeJSON(w, http.StatusOK, api.CoverageResponse{
		Key:      key.String(),
		Cached:   f.IsCached(r.Context(), key),
		Revision: f.Revision(),
	})
}

func findLayer(f maps.Frame, name string) (layer.Layer, bool) {
	for _, l := range f.Layers() {
		if l.Name() == name {
			return l, true
		}
	}
	return nil, false
}

// handleError maps pipeline errors onto HTTP statuses.
func (s *Server) handleError(w http.ResponseWriter, err error, requestID *string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, "TILE_SERVER_TIMEOUT",
			"Tile server requests timed out", requestID, nil)
	case errors.Is(err, context.Canceled):
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "REQUEST_CANCELED",
			"Request was canceled", requestID, nil)
	case errors.Is(err, tile.ErrInvalidKey), errors.Is(err, tile.ErrInvalidProfile), errors.Is(err, tile.ErrInvalidExtent):
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), requestID, nil)
	case errors.Is(err, source.ErrNotSupported):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "NOT_SUPPORTED", err.Error(), requestID, nil)
	case errors.Is(err, mosaic.ErrMosaicTooLarge):
		s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "MOSAIC_TOO_LARGE", err.Error(), requestID, nil)
	default:
		s.logger.Error("request failed", "request_id", *requestID, "error", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID, nil)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response failed", "error", err)
	}
}

func (s *Server) writePNG(w http.ResponseWriter, data []byte, requestID string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("writing response failed", "error", err)
	}
}

func (s *Server) writeNoContent(w http.ResponseWriter, requestID string) {
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(http.StatusNoContent)
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]interface{}) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}
	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// writeValidationErrorResponse writes a validation error response
func (s *Server) writeValidationErrorResponse(w http.ResponseWriter, field, message string, requestID *string) {
	s.writeJSON(w, http.StatusBadRequest, api.ValidationErrorResponse{
		Error:     api.VALIDATIONERROR,
		Message:   message,
		RequestId: requestID,
		ValidationErrors: []api.ValidationError{
			{Field: field, Message: message},
		},
	})
}

// requestIDFrom reuses the id assigned by RequestID and falls back to a
// fresh one.
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return generateRequestID()
}

func generateRequestID() string {
	return "req_" + uuid.NewString()
}
