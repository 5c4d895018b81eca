package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camppulse_runs_total",
			Help: "Pipeline runs by outcome",
		},
		[]string{"status"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "camppulse_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	runWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camppulse_run_warnings_total",
			Help: "Non-fatal warnings recorded by pipeline stages",
		},
		[]string{"stage"},
	)

	postsAnalyzedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camppulse_posts_analyzed_total",
			Help: "Posts loaded into pipeline runs",
		},
	)

	reportPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "camppulse_report_persist_failures_total",
			Help: "Weekly report upserts that failed",
		},
	)
)
