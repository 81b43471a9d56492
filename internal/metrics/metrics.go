// Package metrics exposes Prometheus counters/gauges/histograms for the
// scheduler's task lifecycle, served at /metrics by internal/httpapi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_total",
		Help: "Total tasks processed, by terminal status.",
	}, []string{"status"})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current number of tasks waiting in the queue.",
	})

	TaskDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "task_duration_seconds",
		Help:    "Wall-clock duration of completed task executions.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	SessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_active",
		Help: "Current number of open streaming sessions.",
	})
)

// Registry is the process's Prometheus registry, pre-registered with every
// collector above.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(TasksTotal, QueueDepth, TaskDurationSeconds, SessionActive)
}
