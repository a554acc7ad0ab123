package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /health)
	GetHealth(w http.ResponseWriter, r *http.Request)
	// (GET /layers)
	ListLayers(w http.ResponseWriter, r *http.Request)
	// (GET /tiles/{layer}/{z}/{x}/{y})
	GetTile(w http.ResponseWriter, r *http.Request, layer string, z uint32, x uint32, y uint32)
	// (POST /mosaic)
	CreateMosaic(w http.ResponseWriter, r *http.Request)
	// (GET /elevation/{z}/{x}/{y})
	GetElevation(w http.ResponseWriter, r *http.Request, z uint32, x uint32, y uint32, params GetElevationParams)
	// (GET /coverage/{z}/{x}/{y})
	GetCoverage(w http.ResponseWriter, r *http.Request, z uint32, x uint32, y uint32)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

type MiddlewareFunc func(http.Handler) http.Handler

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	handler := http.Handler(h)
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) bindPath(w http.ResponseWriter, r *http.Request, name string, dest interface{}) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

func (siw *ServerInterfaceWrapper) bindTile(w http.ResponseWriter, r *http.Request) (z, x, y uint32, ok bool) {
	ok = siw.bindPath(w, r, "z", &z) && siw.bindPath(w, r, "x", &x) && siw.bindPath(w, r, "y", &y)
	return z, x, y, ok
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetHealth)
}

// ListLayers operation middleware
func (siw *ServerInterfaceWrapper) ListLayers(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.ListLayers)
}

// GetTile operation middleware
func (siw *ServerInterfaceWrapper) GetTile(w http.ResponseWriter, r *http.Request) {
	var layer string
	if !siw.bindPath(w, r, "layer", &layer) {
		return
	}
	z, x, y, ok := siw.bindTile(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetTile(w, r, layer, z, x, y)
	})
}

// CreateMosaic operation middleware
func (siw *ServerInterfaceWrapper) CreateMosaic(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.CreateMosaic)
}

// GetElevation operation middleware
func (siw *ServerInterfaceWrapper) GetElevation(w http.ResponseWriter, r *http.Request) {
	z, x, y, ok := siw.bindTile(w, r)
	if !ok {
		return
	}

	var params GetElevationParams

	// ------------- Optional query parameter "columns" -------------
	if err := runtime.BindQueryParameter("form", true, false, "columns", r.URL.Query(), &params.Columns); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "columns", Err: err})
		return
	}

	// ------------- Optional query parameter "rows" -------------
	if err := runtime.BindQueryParameter("form", true, false, "rows", r.URL.Query(), &params.Rows); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "rows", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetElevation(w, r, z, x, y, params)
	})
}

// GetCoverage operation middleware
func (siw *ServerInterfaceWrapper) GetCoverage(w http.ResponseWriter, r *http.Request) {
	z, x, y, ok := siw.bindTile(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetCoverage(w, r, z, x, y)
	})
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Handler creates http.Handler with the API routes registered.
func Handler(si ServerInterface) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{})
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with additional options
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter

	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/health", wrapper.GetHealth)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/layers", wrapper.ListLayers)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/tiles/{layer}/{z}/{x}/{y}", wrapper.GetTile)
	})
	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/mosaic", wrapper.CreateMosaic)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/elevation/{z}/{x}/{y}", wrapper.GetElevation)
	})
	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/coverage/{z}/{x}/{y}", wrapper.GetCoverage)
	})

	return r
}
