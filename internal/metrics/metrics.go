// Package metrics registers the Prometheus collectors for mosaic building,
// tile fetching and cache traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MosaicsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostitch_mosaics_built_total",
		Help: "Total number of mosaics assembled",
	})

	MosaicFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostitch_mosaic_failures_total",
		Help: "Total number of composite requests that produced no data",
	}, []string{"reason"})

	CompositeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geostitch_composite_duration_seconds",
		Help:    "Duration of cross-profile composite operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	TileFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostitch_tile_fetches_total",
		Help: "Total number of tiles requested from sources",
	}, []string{"result"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geostitch_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostitch_cache_lookups_total",
		Help: "Total number of cache lookups",
	}, []string{"result"})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geostitch_cache_stores_total",
		Help: "Total number of cache store operations",
	})

	CoverageChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostitch_coverage_checks_total",
		Help: "Total number of cache coverage evaluations",
	}, []string{"result"})

	FrameSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geostitch_frame_syncs_total",
		Help: "Total number of frame synchronisations",
	}, []string{"changed"})
)

// Result label values.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultOK     = "ok"
	ResultNoData = "no_data"
	ResultError  = "error"
)

// Bool renders a boolean label value.
func Bool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
