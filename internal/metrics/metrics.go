// Package metrics exposes the service's prometheus instruments. All
// instruments live on the default registry and are served by the HTTP
// layer's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationsTotal counts pipeline runs by outcome: ok, skip, busy, failed.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moyuren_generations_total",
		Help: "Generation pipeline runs by outcome",
	}, []string{"template", "outcome"})

	// GenerationDuration observes wall time of successful pipeline runs.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moyuren_generation_duration_seconds",
		Help:    "Wall time of successful generation runs",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
	})

	// SourceFailures counts upstream adapter failures that were degraded to
	// nil payloads.
	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moyuren_source_failures_total",
		Help: "Upstream adapter failures tolerated by the fan-out fetcher",
	}, []string{"source"})

	// DailyCacheResults counts daily cache reads by outcome:
	// hit, fresh, stale_fallback, miss.
	DailyCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moyuren_daily_cache_results_total",
		Help: "Daily cache reads by outcome",
	}, []string{"namespace", "outcome"})

	// CleanupDeletedFiles counts files removed by the retention cleaner.
	CleanupDeletedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moyuren_cleanup_deleted_files_total",
		Help: "Files removed by the cache cleaner",
	})
)
