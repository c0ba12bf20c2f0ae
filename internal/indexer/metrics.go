package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// workerMetrics holds the Prometheus metrics owned by the sync worker. A
// fresh instance registers into the provided registry so unit tests stay
// hermetic.
type workerMetrics struct {
	// runsTotal counts completed sync runs, partitioned by outcome:
	// "ok", "error", or "skipped".
	runsTotal *prometheus.CounterVec

	// runDurationSeconds records the wall-clock duration of full sync runs.
	runDurationSeconds prometheus.Histogram

	// tenantsProcessedTotal counts tenants handled across all runs.
	tenantsProcessedTotal prometheus.Counter

	// vectorsUpsertedTotal counts vectors written across all runs.
	vectorsUpsertedTotal prometheus.Counter

	// windowFailuresTotal counts per-tenant-per-window failures that were
	// logged and skipped.
	windowFailuresTotal prometheus.Counter
}

func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	factory := promauto.With(reg)

	return &workerMetrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs, partitioned by outcome.",
		}, []string{"outcome"}),

		runDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "insight",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of full sync runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),

		tenantsProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "sync",
			Name:      "tenants_processed_total",
			Help:      "Total number of tenants processed across all sync runs.",
		}),

		vectorsUpsertedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "sync",
			Name:      "vectors_upserted_total",
			Help:      "Total number of vectors upserted across all sync runs.",
		}),

		windowFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "insight",
			Subsystem: "sync",
			Name:      "window_failures_total",
			Help:      "Total number of per-tenant-per-window failures that were skipped.",
		}),
	}
}
