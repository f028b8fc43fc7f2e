package fingerprint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvision_cache_hits_total",
		Help: "Fingerprint cache hits served without a model call",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvision_cache_misses_total",
		Help: "Fingerprint cache misses that required model invocation",
	})
	storeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvision_cache_store_errors_total",
		Help: "Cache store failures degraded to misses or swallowed writes",
	})
)
