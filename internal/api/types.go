// Package api holds the HTTP types and chi routing of the geostitch API.
package api

import "time"

// Defines values for HealthResponseStatus.
const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
)

// Defines values for ValidationErrorResponseError.
const (
	VALIDATIONERROR ValidationErrorResponseError = "VALIDATION_ERROR"
)

// Defines values for LayerInfoKind.
const (
	LayerKindImage     LayerInfoKind = "image"
	LayerKindElevation LayerInfoKind = "elevation"
	LayerKindOther     LayerInfoKind = "other"
)

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status HealthResponseStatus `json:"status"`

	Timestamp time.Time `json:"timestamp"`

	// Uptime Server uptime in seconds
	Uptime  *int    `json:"uptime,omitempty"`
	Version *string `json:"version,omitempty"`

	// Revision of the map the server is serving
	Revision *int64 `json:"revision,omitempty"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Details   *map[string]interface{} `json:"details,omitempty"`
	Error     string                  `json:"error"`
	Message   string                  `json:"message"`
	RequestId *string                 `json:"request_id,omitempty"`
}

// ValidationErrorResponse defines model for ValidationErrorResponse.
type ValidationErrorResponse struct {
	Error            ValidationErrorResponseError `json:"error"`
	Message          string                       `json:"message"`
	RequestId        *string                      `json:"request_id,omitempty"`
	ValidationErrors []ValidationError            `json:"validation_errors"`
}

// ValidationError defines model for ValidationErrorResponse.ValidationErrors.
type ValidationError struct {
	Code    *string `json:"code,omitempty"`
	Field   string  `json:"field"`
	Message string  `json:"message"`
}

// ValidationErrorResponseError defines model for ValidationErrorResponse.Error.
type ValidationErrorResponseError string

// LayerInfo defines model for LayerInfo.
type LayerInfo struct {
	Uid      string        `json:"uid"`
	Name     string        `json:"name"`
	Kind     LayerInfoKind `json:"kind"`
	Enabled  bool          `json:"enabled"`
	MinLevel *uint32       `json:"min_level,omitempty"`
	MaxLevel *uint32       `json:"max_level,omitempty"`

	// Profile of the layer's tile source
	SourceProfile *string `json:"source_profile,omitempty"`
	CachePolicy   *string `json:"cache_policy,omitempty"`
}

// LayerInfoKind defines model for LayerInfo.Kind.
type LayerInfoKind string

// LayersResponse defines model for LayersResponse.
type LayersResponse struct {
	Map      string      `json:"map"`
	Profile  string      `json:"profile"`
	Revision int64       `json:"revision"`
	Layers   []LayerInfo `json:"layers"`
}

// MosaicRequest defines model for MosaicRequest.
type MosaicRequest struct {
	// Layer Image layer whose tile source is mosaicked
	Layer string `json:"layer"`

	// Z X Y address a tile of the map profile in XYZ order
	Z uint32 `json:"z"`
	X uint32 `json:"x"`
	Y uint32 `json:"y"`

	// Crop the mosaic to the requested tile extent
	Crop *bool `json:"crop,omitempty"`
}

// ElevationResponse defines model for ElevationResponse.
type ElevationResponse struct {
	Key     string `json:"key"`
	Columns int    `json:"columns"`
	Rows    int    `json:"rows"`

	// Extent minx,miny,maxx,maxy in the map profile's reference
	Extent [4]float64 `json:"extent"`

	// Heights row-major, row 0 southernmost; NoData marks posts without a value
	Heights []float32 `json:"heights"`
	NoData  float32   `json:"no_data"`
}

// CoverageResponse defines model for CoverageResponse.
type CoverageResponse struct {
	Key      string `json:"key"`
	Cached   bool   `json:"cached"`
	Revision int64  `json:"revision"`
}

// GetElevationParams defines parameters for GetElevation.
type GetElevationParams struct {
	Columns *int `form:"columns,omitempty" json:"columns,omitempty"`
	Rows    *int `form:"rows,omitempty" json:"rows,omitempty"`
}

// CreateMosaicJSONRequestBody defines body for CreateMosaic for application/json ContentType.
type CreateMosaicJSONRequestBody = MosaicRequest
