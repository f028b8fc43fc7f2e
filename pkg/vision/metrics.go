package vision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvision_invocation_attempts_total",
		Help: "Remote model invocation attempts by outcome",
	}, []string{"outcome"})

	invocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docvision_invocation_duration_seconds",
		Help:    "Wall-clock duration of individual remote model attempts",
		Buckets: prometheus.DefBuckets,
	})

	fallbackAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvision_model_fallbacks_total",
		Help: "Times a transient failure advanced the request to a fallback model",
	})

	retriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docvision_retries_exhausted_total",
		Help: "Requests that failed every attempt up to the ceiling",
	})
)
