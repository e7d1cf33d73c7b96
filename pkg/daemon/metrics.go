package daemon

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	convergemetrics "github.com/convergeproj/converge/pkg/metrics"
)

var (
	// A cycle over ~100 resources takes about thirty seconds to a
	// minute. Most short-lived (<1s) cycles will be failures.
	cycleDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "converge",
		Subsystem: "daemon",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a reconciliation cycle, in seconds.",
		Buckets:   []float64{0.5, 5, 10, 20, 30, 40, 50, 60, 75, 90, 120, 240},
	}, []string{convergemetrics.LabelSuccess})

	stepDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "converge",
		Subsystem: "daemon",
		Name:      "cycle_step_duration_seconds",
		Help:      "Duration of one step of a cycle, labeled by phase, in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{convergemetrics.LabelPhase})

	syncManifestsMetric = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "converge",
		Subsystem: "daemon",
		Name:      "sync_manifests",
		Help:      "Number of manifests in the last-fetched desired state.",
	}, []string{convergemetrics.LabelApplication})

	outOfSyncMetric = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "converge",
		Subsystem: "daemon",
		Name:      "out_of_sync",
		Help:      "Number of resources out of sync at the last diff.",
	}, []string{convergemetrics.LabelApplication})
)
