package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_jobs_enqueued_total",
			Help: "Total number of evaluation requests published to the queue",
		},
	)

	JobsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_jobs_completed_total",
			Help: "Total number of jobs moved to completed by the worker",
		},
	)

	JobsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_jobs_failed_total",
			Help: "Total number of jobs moved to failed by the worker",
		},
	)

	// DeliveriesFailed includes transient failures that later succeed on redelivery.
	DeliveriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_deliveries_failed_total",
			Help: "Total number of failed deliveries, by reason",
		},
		[]string{"reason"},
	)

	JobsDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_jobs_dead_lettered_total",
			Help: "Total number of messages moved to the dead-letter stream",
		},
	)

	DeliveriesRedelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_deliveries_redelivered_total",
			Help: "Total number of messages delivered more than once",
		},
	)

	ResultsSchemaInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_results_schema_invalid_total",
			Help: "Completions stored verbatim that did not match the result schema",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_duration_seconds",
			Help:    "Duration of a single message evaluation in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)
