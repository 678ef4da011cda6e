package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Operation outcomes used for the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePlanned = "planned"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry          *prometheus.Registry // Use a custom registry
	ReconcileRunning  prometheus.Gauge
	RunDuration       prometheus.Histogram
	LastRunTimestamp  prometheus.Gauge
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	UnchangedTotal    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry()

	return &Store{
		Registry: registry,
		ReconcileRunning: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "mongosync_up",
			Help: "Indicates if a reconciliation pass is currently running (1 = running, 0 = not running).",
		}),
		RunDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "mongosync_run_duration_seconds",
			Help:    "Duration of an entire reconciliation pass.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~14min
		}),
		LastRunTimestamp: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "mongosync_last_run_timestamp_seconds",
			Help: "Unix time at which the last reconciliation pass finished.",
		}),
		OperationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mongosync_operations_total",
			Help: "Create/drop operations decided by the reconciler, labeled by operation and outcome.",
		}, []string{"operation", "outcome"}), // operation: create_collection, drop_collection, create_index, drop_index
		OperationDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mongosync_operation_duration_seconds",
			Help:    "Duration histogram for individual database operations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		}, []string{"operation"}),
		UnchangedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mongosync_unchanged_total",
			Help: "Collections and indexes that already matched the desired schema.",
		}, []string{"kind"}), // kind: collection, index
		ErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "mongosync_errors_total",
			Help: "Total number of errors encountered during reconciliation, labeled by type and collection.",
		}, []string{"type", "collection"}), // Types: list_databases, list_collections, list_indexes, create_collection, drop_collection, create_index, drop_index, connection, connection_cancelled, connection_failed
	}
}

// Push sends the current registry to a Prometheus Pushgateway under job.
// Short-lived jobs are not scraped reliably, so this runs once per pass.
func (s *Store) Push(gatewayURL, job, database string) error {
	err := push.New(gatewayURL, job).
		Gatherer(s.Registry).
		Grouping("database", database).
		Push()
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
