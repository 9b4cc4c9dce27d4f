package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerteval_evaluations_total",
			Help: "Total number of alert evaluation runs by result",
		},
		[]string{"result"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alerteval_evaluation_duration_seconds",
			Help:    "Alert evaluation run latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	HistoriesWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerteval_histories_written_total",
			Help: "Total number of alert history rows written",
		},
	)

	FetchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerteval_fetch_errors_total",
			Help: "Total number of failed data source queries",
		},
	)

	// Notification metrics
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerteval_notifications_sent_total",
			Help: "Total number of notifications delivered per channel",
		},
		[]string{"channel"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerteval_notifications_failed_total",
			Help: "Total number of notification dispatch failures per channel",
		},
		[]string{"channel"},
	)
)

// Evaluation result labels.
const (
	ResultEvaluated = "evaluated"
	ResultSkipped   = "skipped"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)
