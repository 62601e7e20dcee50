package probe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probe_outcomes_total",
		Help: "Occupancy probe outcomes",
	}, []string{"outcome"})

	metricDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "probe_duration_ms",
		Help:    "Occupancy probe wall time",
		Buckets: prometheus.ExponentialBuckets(50, 1.8, 10),
	})
)
