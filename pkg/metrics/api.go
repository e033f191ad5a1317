package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics contains Prometheus metrics for the HTTP API server.
type APIMetrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	RequestsInFlight    prometheus.Gauge
	AlertsCreated       *prometheus.CounterVec
	AlertTransitions    *prometheus.CounterVec
	ReadingsIngested    *prometheus.CounterVec
	NotificationsSent   *prometheus.CounterVec
	SuppressedDispatch  *prometheus.CounterVec
	DevicesProvisioned  prometheus.Counter
	ProvisioningErrors  prometheus.Counter
	OwnershipRejections *prometheus.CounterVec
}

// NewAPIMetrics creates and registers API server metrics.
func NewAPIMetrics(namespace string) *APIMetrics {
	m := &APIMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		AlertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "created_total",
				Help:      "Total number of alerts created",
			},
			[]string{"type"},
		),
		AlertTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "alerts",
				Name:      "transitions_total",
				Help:      "Total number of alert status transitions",
			},
			[]string{"status"},
		),
		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "readings",
				Name:      "ingested_total",
				Help:      "Total number of sensor readings ingested",
			},
			[]string{"sensor_type", "source"}, // source: api, device
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "recorded_total",
				Help:      "Total number of notification records created",
			},
			[]string{"channel"},
		),
		SuppressedDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "suppressed_total",
				Help:      "Total number of dispatches suppressed by repetition delay",
			},
			[]string{"channel"},
		),
		DevicesProvisioned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "devices",
				Name:      "provisioned_total",
				Help:      "Total number of devices provisioned",
			},
		),
		ProvisioningErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "devices",
				Name:      "provisioning_errors_total",
				Help:      "Total number of failed provisioning attempts",
			},
		),
		OwnershipRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ownership",
				Name:      "rejections_total",
				Help:      "Total number of accesses rejected by the ownership chain",
			},
			[]string{"kind"},
		),
	}

	MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.AlertsCreated,
		m.AlertTransitions,
		m.ReadingsIngested,
		m.NotificationsSent,
		m.SuppressedDispatch,
		m.DevicesProvisioned,
		m.ProvisioningErrors,
		m.OwnershipRejections,
	)

	return m
}
