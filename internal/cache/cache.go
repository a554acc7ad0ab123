// Package cache stores encoded tiles keyed by layer bin and tile address.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiesman99/geostitch/pkg/tile"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("cache: unknown backend")

// Key addresses one cached tile. Bin separates layers sharing a cache.
type Key struct {
	Bin   string
	Level uint32
	X     uint32
	Y     uint32
}

// KeyFor returns the cache key of k in bin.
func KeyFor(bin string, k tile.TileKey) Key {
	return Key{Bin: bin, Level: k.Level, X: k.X, Y: k.Y}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Bin, k.Level, k.X, k.Y)
}

// Cache is a tile store. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, k Key) ([]byte, bool, error)
	Set(ctx context.Context, k Key, v []byte) error
	Has(ctx context.Context, k Key) (bool, error)
	Close() error
}
