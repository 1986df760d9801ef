package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	ApplicationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passport_applications_submitted_total",
			Help: "Applications accepted, by category",
		},
		[]string{"category"},
	)

	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passport_stage_transitions_total",
			Help: "Stage actions applied, by stage, action and resulting application status",
		},
		[]string{"stage", "action", "status"},
	)

	TransitionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "passport_transition_conflicts_total",
			Help: "Stage actions rejected because the application version moved",
		},
	)

	Estimations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passport_estimations_total",
			Help: "Processing-time estimates, by source (model or fallback)",
		},
		[]string{"source"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passport_notifications_total",
			Help: "Notification deliveries, by channel and status",
		},
		[]string{"channel", "status"},
	)

	SearchIndexFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "passport_search_index_failures_total",
			Help: "Applications that could not be written to the search index",
		},
	)
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passport_http_requests_total",
			Help: "HTTP requests served, by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "passport_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
