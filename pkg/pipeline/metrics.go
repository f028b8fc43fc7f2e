package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvision_pipeline_requests_total",
		Help: "Pipeline requests by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docvision_pipeline_duration_seconds",
		Help:    "End-to-end pipeline processing time",
		Buckets: prometheus.DefBuckets,
	})
)
