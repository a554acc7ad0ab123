package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
)

const defaultMemoryEntries = 10000

// Memory is a bounded in-process cache.
type Memory struct {
	c *otter.Cache[Key, []byte]
}

var _ Cache = (*Memory)(nil)

// NewMemory keeps at most maxEntries tiles, each for at most ttl. A zero
// ttl never expires entries.
func NewMemory(maxEntries int, ttl time.Duration) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	opts := &otter.Options[Key, []byte]{MaximumSize: maxEntries}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryWriting[Key, []byte](ttl)
	}
	c, err := otter.New(opts)
	if err != nil {
		return nil, err
	}
	return &Memory{c: c}, nil
}

func (m *Memory) Get(_ context.Context, k Key) ([]byte, bool, error) {
	v, ok := m.c.GetIfPresent(k)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, k Key, v []byte) error {
	m.c.Set(k, v)
	return nil
}

func (m *Memory) Has(_ context.Context, k Key) (bool, error) {
	_, ok := m.c.GetIfPresent(k)
	return ok, nil
}

func (m *Memory) Close() error {
	m.c.InvalidateAll()
	return nil
}
