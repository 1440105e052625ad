// Package metrics holds the Prometheus collectors for the board.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoutboard_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Submission metrics
	MessagesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shoutboard_messages_submitted_total",
			Help: "Total messages accepted into the queue",
		},
	)

	SubmissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_submissions_rejected_total",
			Help: "Total submissions rejected",
		},
		[]string{"reason"}, // "validation" or "rate_limit"
	)

	// Scheduler metrics
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shoutboard_reconcile_duration_seconds",
			Help:    "Duration of one expire-then-promote cycle",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_transitions_total",
			Help: "Successful lifecycle transitions",
		},
		[]string{"kind"}, // "activated", "resurfaced", "expired"
	)

	TransitionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_transition_conflicts_total",
			Help: "Transitions skipped because another actor already applied them",
		},
		[]string{"kind"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_store_errors_total",
			Help: "Store operations that failed",
		},
		[]string{"op"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_publish_errors_total",
			Help: "Events that could not be published",
		},
		[]string{"topic"},
	)

	ActiveMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoutboard_active_messages",
			Help: "Displaying messages seen by the last promotion sweep",
		},
	)

	// Viewer metrics
	Viewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shoutboard_viewers",
			Help: "Connected viewer sessions",
		},
	)

	ViewerDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_viewer_disconnects_total",
			Help: "Viewer sessions ended",
		},
		[]string{"reason"}, // "client", "lagged", "shutdown"
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_events_relayed_total",
			Help: "Board events received from the broadcast bus",
		},
		[]string{"topic"},
	)

	// Archive metrics
	ArchiveRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoutboard_archive_runs_total",
			Help: "Archive exports by outcome",
		},
		[]string{"destination", "result"},
	)
)
