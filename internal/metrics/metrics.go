// Package metrics exposes Prometheus counters for the read pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_cache_hits_total",
		Help: "Total number of batch cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_cache_misses_total",
		Help: "Total number of batch cache misses",
	})

	CacheStaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_cache_stale_served_total",
		Help: "Total number of stale entries served while a refetch ran",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_cache_evictions_total",
		Help: "Total number of entries evicted by retention cleanup",
	})

	CoalescedWaiters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_coalesced_waiters_total",
		Help: "Total number of callers that joined an in-flight fetch",
	})

	BlockInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_block_invalidations_total",
		Help: "Total number of block-scoped invalidation sweeps",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchread_batch_size",
		Help:    "Number of calls per executed batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchread_provider_requests_total",
		Help: "Total number of HTTP requests per endpoint",
	}, []string{"endpoint"})

	HeadsSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchread_heads_seen_total",
		Help: "Total number of distinct new heads observed",
	})
)

// RecordProviderRequest records one HTTP request to an endpoint
func RecordProviderRequest(endpoint string) {
	ProviderRequests.WithLabelValues(endpoint).Inc()
}

// RecordBatch records the size of an executed batch
func RecordBatch(size int) {
	BatchSize.Observe(float64(size))
}
