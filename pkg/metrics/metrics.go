package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Execution metrics
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_executions_total",
			Help: "Total number of code executions by language and status",
		},
		[]string{"language", "status"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_execution_duration_seconds",
			Help:    "Wall-clock duration of code executions",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"language"},
	)

	// Container metrics
	ActiveContainers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_active_containers",
			Help: "Number of sandbox containers currently tracked",
		},
	)

	ImagePullsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_image_pulls_total",
			Help: "Total number of image pulls by outcome",
		},
		[]string{"status"},
	)

	// File metrics
	FilesRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_files_registered_total",
			Help: "Total number of files registered from execution change sets",
		},
	)

	FilesReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_files_reaped_total",
			Help: "Total number of files removed by the age-based reaper",
		},
	)
)

// Register registers all metrics with the default prometheus registry.
// Call once at daemon startup.
func Register() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionDuration,
		ActiveContainers,
		ImagePullsTotal,
		FilesRegisteredTotal,
		FilesReapedTotal,
	)
}
