package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all the Prometheus metrics used by Compose Doctor
type Metrics struct {
	// Counter metrics
	RepairAttemptsTotal *prometheus.CounterVec
	DecisionsTotal      *prometheus.CounterVec
	EscalationsTotal    *prometheus.CounterVec
	AlertsDroppedTotal  prometheus.Counter

	// Gauge metrics
	ServiceFailureCount        *prometheus.GaugeVec
	ServiceLastRepairTimestamp *prometheus.GaugeVec
	TrackedKeys                prometheus.Gauge
	InFlightActions            prometheus.Gauge

	// Histogram metrics
	TickDuration   prometheus.Histogram
	ActionDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metric definitions
func NewMetrics(namespace string, constLabels prometheus.Labels) (*Metrics, error) {
	if namespace == "" {
		namespace = "compose_doctor"
	}

	labels := make(prometheus.Labels)
	for k, v := range constLabels {
		labels[k] = v
	}

	m := &Metrics{
		RepairAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "repair_attempts_total",
				Help:        "Total number of repair actions dispatched",
				ConstLabels: labels,
			},
			[]string{"service", "action", "success"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "decisions_total",
				Help:        "Total number of repair decisions by outcome",
				ConstLabels: labels,
			},
			[]string{"service", "kind", "outcome"},
		),

		EscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "escalations_total",
				Help:        "Total number of escalation transitions",
				ConstLabels: labels,
			},
			[]string{"service", "kind"},
		),

		AlertsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "alerts_dropped_total",
				Help:        "Total number of inbound alerts dropped due to a full queue",
				ConstLabels: labels,
			},
		),

		ServiceFailureCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "service_failure_count",
				Help:        "Current attempt count per service and failure kind key",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		ServiceLastRepairTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "service_last_repair_timestamp",
				Help:        "Unix timestamp of the last dispatched repair action per service",
				ConstLabels: labels,
			},
			[]string{"service"},
		),

		TrackedKeys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "tracked_keys",
				Help:        "Number of (service, kind) keys currently holding repair state",
				ConstLabels: labels,
			},
		),

		InFlightActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "in_flight_actions",
				Help:        "Number of repair actions currently in progress",
				ConstLabels: labels,
			},
		),

		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "tick_duration_seconds",
				Help:        "Duration of decision ticks in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
		),

		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "action_duration_seconds",
				Help:        "Duration of dispatched repair actions in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
	}

	return m, nil
}

// Register registers all metrics with the provided registry
func (m *Metrics) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.RepairAttemptsTotal,
		m.DecisionsTotal,
		m.EscalationsTotal,
		m.AlertsDroppedTotal,
		m.ServiceFailureCount,
		m.ServiceLastRepairTimestamp,
		m.TrackedKeys,
		m.InFlightActions,
		m.TickDuration,
		m.ActionDuration,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

// Unregister removes all metrics from the provided registry
func (m *Metrics) Unregister(registry *prometheus.Registry) {
	collectors := []prometheus.Collector{
		m.RepairAttemptsTotal,
		m.DecisionsTotal,
		m.EscalationsTotal,
		m.AlertsDroppedTotal,
		m.ServiceFailureCount,
		m.ServiceLastRepairTimestamp,
		m.TrackedKeys,
		m.InFlightActions,
		m.TickDuration,
		m.ActionDuration,
	}

	for _, collector := range collectors {
		registry.Unregister(collector)
	}
}
