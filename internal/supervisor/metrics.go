package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supervisor_state_transitions_total",
		Help: "Recognition session state transitions",
	}, []string{"from", "to"})

	metricRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supervisor_restarts_scheduled_total",
		Help: "Restarts scheduled after a session ended",
	})

	metricRestartDelayMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "supervisor_restart_delay_ms",
		Help:    "Delay applied before a scheduled restart (ms)",
		Buckets: prometheus.ExponentialBuckets(100, 2, 8),
	})

	metricStartRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supervisor_start_rejected_total",
		Help: "Start calls rejected by the recognizer as invalid state",
	})

	metricStalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supervisor_stalls_total",
		Help: "Transitions forced because the recognizer did not report progress",
	}, []string{"state"})
)
