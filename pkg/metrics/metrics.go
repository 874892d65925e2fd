// Package metrics provides Prometheus metrics for the chessism service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal tracks player syncs by outcome
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "ingestion",
			Name:      "syncs_total",
			Help:      "Total number of player syncs by outcome",
		},
		[]string{"outcome"},
	)

	// SyncDuration tracks sync duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chessism",
			Subsystem: "ingestion",
			Name:      "sync_duration_seconds",
			Help:      "Duration of player syncs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	// ArchiveRequestsTotal tracks archive source requests
	ArchiveRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "archive",
			Name:      "requests_total",
			Help:      "Total number of archive source requests",
		},
		[]string{"kind", "status_code"},
	)

	// ArchiveRequestDuration tracks archive source request duration
	ArchiveRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chessism",
			Subsystem: "archive",
			Name:      "request_duration_seconds",
			Help:      "Duration of archive source requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	// ArchiveRetriesTotal tracks retried archive requests
	ArchiveRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "archive",
			Name:      "retries_total",
			Help:      "Total number of retried archive requests",
		},
		[]string{"kind"},
	)

	// BreakerState tracks the archive circuit breaker state (0=closed, 1=half-open, 2=open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chessism",
			Subsystem: "archive",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// PacerWaitTime tracks time spent waiting on the request pacer
	PacerWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chessism",
			Subsystem: "archive",
			Name:      "pacer_wait_seconds",
			Help:      "Time spent waiting for the request pacer in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// DecodeRejectionsTotal tracks records rejected by the decoder
	DecodeRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "pgn",
			Name:      "rejections_total",
			Help:      "Total number of game records rejected by the decoder",
		},
		[]string{"reason"},
	)

	// PersistedRowsTotal tracks rows written per entity
	PersistedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "database",
			Name:      "persisted_rows_total",
			Help:      "Total number of rows persisted per entity",
		},
		[]string{"entity"},
	)

	// DedupQueryDuration tracks dedup lookups by strategy
	DedupQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chessism",
			Subsystem: "dedup",
			Name:      "query_duration_seconds",
			Help:      "Duration of dedup lookups in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"strategy", "table"},
	)

	// QueueJobsProcessed tracks jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chessism",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// SchedulerJobsEnqueued tracks re-sync jobs enqueued by the scheduler
	SchedulerJobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "scheduler",
			Name:      "jobs_enqueued_total",
			Help:      "Total number of re-sync jobs enqueued",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chessism",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// HTTPRequestsTotal tracks API requests by route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chessism",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chessism",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSync records a sync outcome metric
func RecordSync(outcome string, durationSeconds float64) {
	SyncsTotal.WithLabelValues(outcome).Inc()
	SyncDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordArchiveRequest records an archive source request
func RecordArchiveRequest(kind, statusCode string, durationSeconds float64) {
	ArchiveRequestsTotal.WithLabelValues(kind, statusCode).Inc()
	ArchiveRequestDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordArchiveRetry records a retried archive request
func RecordArchiveRetry(kind string) {
	ArchiveRetriesTotal.WithLabelValues(kind).Inc()
}

// RecordBreakerState records a circuit breaker state transition
func RecordBreakerState(name string, state float64) {
	BreakerState.WithLabelValues(name).Set(state)
}

// RecordRejection records a decoder rejection
func RecordRejection(reason string) {
	DecodeRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordPersisted records persisted rows for an entity
func RecordPersisted(entity string, rows int) {
	PersistedRowsTotal.WithLabelValues(entity).Add(float64(rows))
}

// RecordDedup records a dedup lookup
func RecordDedup(strategy, table string, durationSeconds float64) {
	DedupQueryDuration.WithLabelValues(strategy, table).Observe(durationSeconds)
}

// RecordQueueJob records a queue job processing metric
func RecordQueueJob(status string) {
	QueueJobsProcessed.WithLabelValues(status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records a served API request
func RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
