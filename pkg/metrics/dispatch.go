package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics contains Prometheus metrics for the notification dispatcher.
type DispatchMetrics struct {
	JobsProcessed      *prometheus.CounterVec
	JobErrors          *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ActiveWorkers      prometheus.Gauge
}

// NewDispatchMetrics creates and registers dispatcher metrics.
func NewDispatchMetrics(namespace string) *DispatchMetrics {
	m := &DispatchMetrics{
		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "jobs_total",
				Help:      "Total number of dispatch jobs processed",
			},
			[]string{"channel", "status"}, // status: delivered, failed
		),
		JobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "errors_total",
				Help:      "Total number of dispatcher errors",
			},
			[]string{"error_type"},
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "processing_duration_seconds",
				Help:      "Duration of dispatch job processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "active_workers",
				Help:      "Number of active dispatch workers",
			},
		),
	}

	MustRegister(
		m.JobsProcessed,
		m.JobErrors,
		m.ProcessingDuration,
		m.ActiveWorkers,
	)

	return m
}
