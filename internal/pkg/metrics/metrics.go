package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiergate_refreshes_total",
		Help: "Capacity snapshot refreshes by outcome",
	}, []string{"outcome"})

	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiergate_admission_decisions_total",
		Help: "Admission decisions by action and outcome",
	}, []string{"action", "outcome"})

	WarningsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiergate_warnings_fired_total",
		Help: "Threshold warnings fired by severity",
	}, []string{"severity"})

	UpgradeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiergate_upgrade_requests_total",
		Help: "Tier upgrade requests by outcome",
	}, []string{"outcome"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tiergate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
