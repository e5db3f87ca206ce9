// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RangeReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogj_range_reads_total",
		Help: "Total range reads by fetcher and outcome",
	}, []string{"fetcher", "outcome"})
	RangeReadBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogj_range_read_bytes_total",
		Help: "Total bytes returned by range reads",
	}, []string{"fetcher"})
	RangeReadDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogj_range_read_duration_ms",
		Help:    "Range read duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"fetcher"})
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogj_queries_total",
		Help: "Total container queries by outcome",
	}, []string{"outcome"})
	ChunksFetched = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cogj_query_chunks_fetched",
		Help:    "Chunks fetched per query",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogj_cache_hits_total",
		Help: "Total cache hits by cache",
	}, []string{"cache"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogj_cache_misses_total",
		Help: "Total cache misses by cache",
	}, []string{"cache"})
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cogj_http_requests_total",
		Help: "Total service requests by operation and status",
	}, []string{"request", "status"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogj_http_request_duration_ms",
		Help:    "Service request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	}, []string{"request"})
)

func init() {
	prometheus.MustRegister(RangeReadsTotal)
	prometheus.MustRegister(RangeReadBytes)
	prometheus.MustRegister(RangeReadDurationMs)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(ChunksFetched)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
}

// Handler exposes the registered collectors for scraping on /metrics.
func Handler() http.Handler { return promhttp.Handler() }
