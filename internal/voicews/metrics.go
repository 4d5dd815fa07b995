package voicews

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicews_connections",
		Help: "Open voice websocket connections",
	})

	metricMessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicews_messages_in_total",
		Help: "Control messages received by type",
	}, []string{"type"})

	metricOutboundDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicews_outbound_dropped_total",
		Help: "Outbound messages dropped because the client queue was full",
	}, []string{"type"})

	metricAudioFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicews_audio_frames_total",
		Help: "Binary PCM frames received",
	})
)
