package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_session_starts_total",
		Help: "Session attempts the service began",
	})

	metricJoinFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_join_failures_total",
		Help: "Channel joins that failed before the session went active",
	})

	metricProviderErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_provider_errors_total",
		Help: "Provider errors during an active session",
	})

	metricLeaseExpiries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_lease_expiries_total",
		Help: "Execution leases that lapsed before the session ended",
	})
)
