package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiesman99/geostitch/internal/logger"
)

// Config selects and parameterises a backend.
type Config struct {
	Backend    string        `mapstructure:"backend"`
	Path       string        `mapstructure:"path"`
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// Open builds the configured backend. An empty or "none" backend returns a
// nil Cache.
func Open(ctx context.Context, cfg Config, l logger.Logger) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "memory":
		c, err = NewMemory(cfg.MaxEntries, cfg.TTL)
	case "filesystem":
		c, err = NewFilesystem(cfg.Path)
	case "sqlite":
		c, err = NewSQLite(cfg.Path, l)
	case "redis":
		if cfg.Redis.TTL == 0 {
			cfg.Redis.TTL = cfg.TTL
		}
		c, err = NewRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
