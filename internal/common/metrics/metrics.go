package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_submissions_total",
			Help: "Total number of form submissions by outcome",
		},
		[]string{"form", "outcome"},
	)

	ValidationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_validation_errors_total",
			Help: "Total number of field validation errors",
		},
		[]string{"form", "field"},
	)

	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "form_submission_duration_seconds",
			Help:    "Duration of submission processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"form"},
	)

	CollaboratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_collaborator_failures_total",
			Help: "Failures of the object store, mail transport and other collaborators",
		},
		[]string{"collaborator"},
	)

	SubmissionsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "form_submissions_in_flight",
			Help: "Number of submissions currently being processed",
		},
		[]string{"form"},
	)
)
