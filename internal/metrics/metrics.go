package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentrygate_evaluations_total",
			Help: "Total number of pipeline evaluations",
		},
		[]string{"action", "level"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentrygate_evaluation_duration_seconds",
			Help:    "Duration of one pipeline evaluation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvaluationsDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_evaluations_degraded_total",
			Help: "Evaluations that hit the deadline and fell back to ALERT_ONLY",
		},
	)

	// Detection metrics
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentrygate_detections_total",
			Help: "Total number of signature detections",
		},
		[]string{"category"},
	)

	// Verdict service metrics
	VerdictFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_verdict_failures_total",
			Help: "Verdict service calls that failed open",
		},
	)

	// Action metrics
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentrygate_actions_total",
			Help: "Response actions by type and outcome",
		},
		[]string{"action", "status"},
	)

	ActionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_action_retries_total",
			Help: "Enforcement calls retried after a transient failure",
		},
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentrygate_rollbacks_total",
			Help: "Action rollbacks by reason",
		},
		[]string{"reason"},
	)

	// Incident metrics
	IncidentsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_incidents_opened_total",
			Help: "Incidents opened",
		},
	)

	IncidentsCorrelated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_incidents_correlated_total",
			Help: "Detections folded into an existing incident",
		},
	)

	// Archive metrics
	ArchiveQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentrygate_archive_queue_depth",
			Help: "Current depth of the archive queue",
		},
	)

	ArchiveDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_archive_dropped_total",
			Help: "Assessments dropped because the archive queue was full",
		},
	)

	ArchiveErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_archive_errors_total",
			Help: "Archive indexing failures",
		},
	)

	// Event publishing metrics
	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentrygate_event_publish_errors_total",
			Help: "Lifecycle events that failed to publish",
		},
	)
)
