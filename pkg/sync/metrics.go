package sync

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	convergemetrics "github.com/convergeproj/converge/pkg/metrics"
)

var (
	syncDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "converge",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Duration of an apply run over a diff, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{convergemetrics.LabelSuccess})

	applyRetries = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "converge",
		Subsystem: "sync",
		Name:      "apply_retries_total",
		Help:      "Number of retried apply or delete calls, by action.",
	}, []string{convergemetrics.LabelAction})
)
