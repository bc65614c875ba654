package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resumechat_turns_total",
		Help: "Completed chat turns by outcome.",
	}, []string{"status"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resumechat_turn_duration_seconds",
		Help:    "Wall time of a full chat turn.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resumechat_operations_total",
		Help: "Dispatched document operations by outcome.",
	}, []string{"operation", "status"})

	versionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resumechat_version_conflicts_total",
		Help: "Document writes rejected for a stale version after retry.",
	})

	capabilityLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resumechat_capability_latency_seconds",
		Help:    "Latency of model completions.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
