package encoding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_encoding_cache_hits_total",
		Help: "Pooled vectors served from the cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_encoding_cache_misses_total",
		Help: "Pooled vectors that required a forward pass",
	})

	encodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bowyer_encoding_duration_seconds",
		Help:    "Time spent in model forward passes",
		Buckets: prometheus.DefBuckets,
	})
)
