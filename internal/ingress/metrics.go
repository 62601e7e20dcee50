package ingress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingress_pushes_accepted_total",
		Help: "Push payloads validated into join requests",
	})

	metricDroppedInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingress_pushes_dropped_invalid_total",
		Help: "Push payloads dropped for missing or malformed fields",
	})

	metricDroppedStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingress_pushes_dropped_stale_total",
		Help: "Push payloads dropped for exceeding the freshness window",
	})
)
