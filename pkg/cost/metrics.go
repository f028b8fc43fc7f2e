package cost

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvision_cost_usd_total",
		Help: "Accumulated vision-model spend this session, by model",
	}, []string{"model"})

	outputTokenHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docvision_output_tokens",
		Help:    "Output token count per reconciled invocation",
		Buckets: []float64{1, 10, 50, 100, 500, 1_000, 2_000, 4_000, 8_000, 16_000},
	})
)
