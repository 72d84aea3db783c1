package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts reconciliation outcomes by entry point.
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "checkins_total",
		Help:      "Check-in attempts by source and outcome.",
	}, []string{"source", "outcome"})

	// StoreCalls measures store round trips.
	StoreCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "store_call_duration_seconds",
		Help:      "Latency of store calls by operation.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"op", "status"})

	// ArchiveJobs counts archive jobs handled by workers.
	ArchiveJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "archive_jobs_total",
		Help:      "Archive jobs by final status.",
	}, []string{"status"})

	// LiveClients is the number of connected live-feed websockets.
	LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "live_clients",
		Help:      "Connected live check-in feed clients.",
	})
)
