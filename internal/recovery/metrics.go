package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_verifications_total",
		Help: "Persisted sessions recovery had to verify",
	})

	metricResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_resumed_total",
		Help: "Sessions resumed after a verified probe",
	})

	metricCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recovery_cleared_total",
		Help: "Persisted sessions cleared as empty or unverifiable",
	})
)
