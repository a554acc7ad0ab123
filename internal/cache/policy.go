package cache

import (
	"fmt"
	"strings"
)

// Usage says how a layer may use its cache.
type Usage int

const (
	UsageReadWrite Usage = iota
	// UsageReadOnly reads the cache but never writes new tiles.
	UsageReadOnly
	// UsageCacheOnly reads the cache and never touches the source.
	UsageCacheOnly
	// UsageNoCache bypasses the cache entirely.
	UsageNoCache
)

// ParseUsage reads a cache policy name. The empty string means read-write.
func ParseUsage(s string) (Usage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "read-write", "readwrite":
		return UsageReadWrite, nil
	case "read-only", "readonly":
		return UsageReadOnly, nil
	case "cache-only", "cacheonly":
		return UsageCacheOnly, nil
	case "no-cache", "nocache", "none":
		return UsageNoCache, nil
	}
	return 0, fmt.Errorf("unknown cache policy %q", s)
}

func (u Usage) String() string {
	switch u {
	case UsageReadOnly:
		return "read-only"
	case UsageCacheOnly:
		return "cache-only"
	case UsageNoCache:
		return "no-cache"
	}
	return "read-write"
}

// Policy controls whether a layer reads and writes its cache.
type Policy struct {
	Usage Usage
}

func (p Policy) IsCacheOnly() bool     { return p.Usage == UsageCacheOnly }
func (p Policy) IsCacheDisabled() bool { return p.Usage == UsageNoCache }
func (p Policy) IsCacheReadable() bool { return p.Usage != UsageNoCache }
func (p Policy) IsCacheWriteable() bool {
	return p.Usage == UsageReadWrite
}

// Settings binds a layer to a cache bin under a policy.
type Settings struct {
	Cache  Cache
	Bin    string
	Policy Policy
}

// IsCacheEnabled reports whether a cache is attached and the policy allows it.
func (s *Settings) IsCacheEnabled() bool {
	return s != nil && s.Cache != nil && !s.Policy.IsCacheDisabled()
}
