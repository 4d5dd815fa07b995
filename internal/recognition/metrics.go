package recognition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recognition_events_total",
		Help: "Normalized recognition events forwarded by kind",
	}, []string{"kind"})

	metricErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recognition_errors_total",
		Help: "Recognition errors by classified kind",
	}, []string{"kind"})

	metricDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recognition_duplicate_lifecycle_total",
		Help: "Lifecycle signals absorbed because they repeated the current state",
	}, []string{"kind"})

	metricStartSwallowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recognition_start_already_running_total",
		Help: "Start calls swallowed because the backend reported it was already running",
	})

	metricConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recognition_connect_ms",
		Help:    "Time to establish the provider connection (ms)",
		Buckets: prometheus.ExponentialBuckets(10, 1.8, 10),
	})

	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recognition_audio_bytes_total",
		Help: "Total audio bytes enqueued to the provider",
	})

	metricDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recognition_audio_drops_total",
		Help: "Audio frames dropped due to backpressure or no open session",
	})
)
