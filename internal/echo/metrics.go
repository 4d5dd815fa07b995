package echo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "echo_flush_verdicts_total",
	Help: "Flush requests by suppressor verdict",
}, []string{"reason"})
