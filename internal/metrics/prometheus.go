// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artstyle_jobs_processed_total",
		Help: "Total number of styling jobs processed, by media kind and status",
	}, []string{"kind", "status"})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artstyle_processing_duration_seconds",
		Help:    "Duration of the styling pipeline, by media kind",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"kind"})

	FramesStyledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artstyle_frames_styled_total",
		Help: "Total number of video frames styled across all jobs",
	})

	StyleFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artstyle_style_fallbacks_total",
		Help: "Total number of images or frames returned unstyled after a pipeline failure",
	}, []string{"style"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artstyle_active_jobs",
		Help: "Number of styling jobs currently running",
	})

	FilesSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artstyle_files_swept_total",
		Help: "Total number of expired files removed by the retention sweeper",
	}, []string{"dir"})
)
