package turn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricUtterances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_utterances_delivered_total",
		Help: "Utterances handed to the consumer",
	})

	metricFlushDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_flush_dropped_total",
		Help: "Flushes dropped before delivery",
	}, []string{"reason"})

	metricWatchdogResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_watchdog_resets_total",
		Help: "Agent holds force-released by the stuck-turn watchdog",
	})

	metricFloorDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_floor_decisions_total",
		Help: "Listening decisions by reason",
	}, []string{"reason"})

	metricUtteranceChars = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "turn_utterance_chars",
		Help:    "Length of delivered utterances in characters",
		Buckets: prometheus.ExponentialBuckets(8, 2, 8),
	})
)
