// Package observability holds the Prometheus metrics for the service.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	queryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_duration_seconds",
			Help:    "Duration of zonal statistics queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"shape", "strategy", "outcome"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of cache store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "ok"},
	)

	rastersLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rasters_loaded",
			Help: "Number of rasters currently held by the registry.",
		},
	)

	rasterOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raster_ops_total",
			Help: "Raster registry operations by kind and outcome.",
		},
		[]string{"op", "ok"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version", "strategy"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveQuery(shape, strategy string, err error, durationSeconds float64) {
	queryDurationSeconds.WithLabelValues(shape, strategy, outcome(err)).Observe(durationSeconds)
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpDurationSeconds.WithLabelValues(op, okLabel(err)).Observe(durationSeconds)
}

func RasterLoaded(err error) {
	rasterOpsTotal.WithLabelValues("load", okLabel(err)).Inc()
	if err == nil {
		rastersLoaded.Inc()
	}
}

func RasterUnloaded() {
	rasterOpsTotal.WithLabelValues("unload", "true").Inc()
	rastersLoaded.Dec()
}

func ExposeBuildInfo(version, strategy string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version, strategy).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func okLabel(err error) string {
	return strconv.FormatBool(err == nil)
}
