package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_state_transitions_total",
		Help: "Session state transitions",
	}, []string{"from", "to"})

	metricDiscards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_silent_discards_total",
		Help: "Sessions dropped without reaching ENDED (empty or failed probes, join failures)",
	})
)
