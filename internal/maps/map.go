// Package maps holds the live, mutable layer collection (Map) and the
// revision-tracked snapshots of it (Frame) that consumers read from.
package maps

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kiesman99/geostitch/internal/cache"
	"github.com/kiesman99/geostitch/internal/layer"
	"github.com/kiesman99/geostitch/internal/logger"
	"github.com/kiesman99/geostitch/pkg/tile"
)

var (
	ErrDuplicateLayer = errors.New("maps: layer already in map")
	ErrLayerNotFound  = errors.New("maps: layer not found")
	ErrMapClosed      = errors.New("maps: map closed")
)

// Options are the fixed properties of a map.
type Options struct {
	Name    string
	Profile *tile.Profile
	// ElevationInterpolation is used when resampling elevation layers onto
	// a requested grid.
	ElevationInterpolation tile.Interpolation
}

// Map is an ordered collection of layers. Later layers draw on top of
// earlier ones. Every structural change bumps the revision.
type Map struct {
	uid    uuid.UUID
	opts   Options
	cache  cache.Cache
	logger logger.Logger

	mu       sync.RWMutex
	layers   []layer.Layer
	revision atomic.Int64
	closed   atomic.Bool
}

// Option configures a Map.
type Option func(*Map)

// WithCache attaches the map-wide cache. The map closes it on Close.
func WithCache(c cache.Cache) Option {
	return func(m *Map) { m.cache = c }
}

// WithLogger sets the logger used for layer lifecycle messages.
func WithLogger(l logger.Logger) Option {
	return func(m *Map) { m.logger = l }
}

// New creates an empty map. A nil profile defaults to global-geodetic.
func New(opts Options, options ...Option) *Map {
	if opts.Profile == nil {
		opts.Profile = tile.GlobalGeodetic()
	}
	m := &Map{uid: uuid.New(), opts: opts, logger: logger.Nop()}
	for _, o := range options {
		o(m)
	}
	return m
}

func (m *Map) UID() uuid.UUID         { return m.uid }
func (m *Map) Options() Options       { return m.opts }
func (m *Map) Profile() *tile.Profile { return m.opts.Profile }
func (m *Map) Revision() int64        { return m.revision.Load() }
func (m *Map) Closed() bool           { return m.closed.Load() }

// Cache returns the map-wide cache, or nil.
func (m *Map) Cache() cache.Cache { return m.cache }

// AddLayer appends l on top of the stack.
func (m *Map) AddLayer(l layer.Layer) error {
	return m.InsertLayer(l, -1)
}

// InsertLayer puts l at index; a negative or too large index appends.
func (m *Map) InsertLayer(l layer.Layer, index int) error {
	if m.Closed() {
		return ErrMapClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.layers {
		if existing.UID() == l.UID() || existing.Name() == l.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name())
		}
	}
	if index < 0 || index > len(m.layers) {
		index = len(m.layers)
	}
	m.layers = append(m.layers, nil)
	copy(m.layers[index+1:], m.layers[index:])
	m.layers[index] = l
	rev := m.revision.Add(1)
	m.logger.Debug("layer added", "map", m.opts.Name, "layer", l.Name(), "index", index, "revision", rev)
	return nil
}

func (m *Map) RemoveLayer(uid layer.UID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(uid)
	if i < 0 {
		return ErrLayerNotFound
	}
	name := m.layers[i].Name()
	m.layers = append(m.layers[:i:i], m.layers[i+1:]...)
	rev := m.revision.Add(1)
	m.logger.Debug("layer removed", "map", m.opts.Name, "layer", name, "revision", rev)
	return nil
}

// MoveLayer repositions a layer; index is clamped to the valid range.
func (m *Map) MoveLayer(uid layer.UID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(uid)
	if i < 0 {
		return ErrLayerNotFound
	}
	index = max(0, min(index, len(m.layers)-1))
	if i == index {
		return nil
	}
	l := m.layers[i]
	layers := append(m.layers[:i:i], m.layers[i+1:]...)
	layers = append(layers[:index], append([]layer.Layer{l}, layers[index:]...)...)
	m.layers = layers
	m.revision.Add(1)
	return nil
}

func (m *Map) indexOf(uid layer.UID) int {
	for i, l := range m.layers {
		if l.UID() == uid {
			return i
		}
	}
	return -1
}

// Layers returns a copy of the layer stack, bottom first.
func (m *Map) Layers() []layer.Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]layer.Layer(nil), m.layers...)
}

func (m *Map) LayerByName(name string) (layer.Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.layers {
		if l.Name() == name {
			return l, true
		}
	}
	return nil, false
}

func (m *Map) LayerByUID(uid layer.UID) (layer.Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(uid); i >= 0 {
		return m.layers[i], true
	}
	return nil, false
}

// Close detaches every frame and releases the cache. Frames bound to a
// closed map degrade to empty on their next Sync.
func (m *Map) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.mu.Lock()
	m.layers = nil
	m.mu.Unlock()
	m.revision.Add(1)
	if m.cache != nil {
		return m.cache.Close()
	}
	return nil
}

// sync copies the layers selected by f's parts into f when f is stale and
// reports whether it did.
func (m *Map) sync(f *Frame) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rev := m.revision.Load()
	if f.initialized && f.revision == rev {
		return false
	}
	layers := make([]layer.Layer, 0, len(m.layers))
	for _, l := range m.layers {
		if f.parts.includes(l) {
			layers = append(layers, l)
		}
	}
	f.layers = layers
	f.revision = rev
	f.initialized = true
	return true
}
