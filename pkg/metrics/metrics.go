// Package metrics provides Prometheus metrics for the double checker.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "double_checker"

// Registry holds every metric in this package. Batch runs push it, daemon mode serves it.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// RecordsTotal tracks per-record outcomes of a run
	RecordsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of records processed by outcome",
		},
		[]string{"outcome"},
	)

	// RunsTotal tracks completed runs by status
	RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by status",
		},
		[]string{"status"},
	)

	// RunDuration tracks run duration in seconds
	RunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// LastRunTimestamp is the unix time the last run finished
	LastRunTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last sync run finished by status",
		},
		[]string{"status"},
	)

	// SourceRequestsTotal tracks calls made to the source API
	SourceRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "requests_total",
			Help:      "Total number of source API requests",
		},
		[]string{"operation", "status_code"},
	)

	// SourceRequestDuration tracks source API request duration
	SourceRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "request_duration_seconds",
			Help:      "Duration of source API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// SinkOperationDuration tracks sink store operation duration
	SinkOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "operation_duration_seconds",
			Help:      "Duration of sink store operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// NotificationsTotal tracks notification deliveries
	NotificationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of notifications sent by sink and status",
		},
		[]string{"sink", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// RunLockContention tracks runs refused because another run held the lock
	RunLockContention = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_lock_contention_total",
			Help:      "Total number of runs refused because another run was active",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordOutcome counts n records with the given outcome
func RecordOutcome(outcome string, n int) {
	if n <= 0 {
		return
	}
	RecordsTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordRun records a finished run
func RecordRun(status string, durationSeconds float64, finishedUnix float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(durationSeconds)
	LastRunTimestamp.WithLabelValues(status).Set(finishedUnix)
}

// RecordSourceRequest records a source API request
func RecordSourceRequest(operation, statusCode string, durationSeconds float64) {
	SourceRequestsTotal.WithLabelValues(operation, statusCode).Inc()
	SourceRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordSinkOperation records a sink store operation
func RecordSinkOperation(operation string, durationSeconds float64) {
	SinkOperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordNotification records a notification attempt
func RecordNotification(sink, status string) {
	NotificationsTotal.WithLabelValues(sink, status).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Push sends the registry to a Pushgateway
func Push(ctx context.Context, endpoint, job string, grouping map[string]string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if strings.TrimSpace(job) == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(endpoint, job).Gatherer(Registry)
	for key, value := range grouping {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}
