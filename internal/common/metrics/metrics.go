// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_uploads_total",
			Help: "Total number of document upload attempts",
		},
		[]string{"result"},
	)

	DocumentReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_reviews_total",
			Help: "Total number of document review decisions",
		},
		[]string{"decision"},
	)

	PipelineTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_transitions_total",
			Help: "Total number of persisted pipeline state transitions",
		},
		[]string{"to_state"},
	)

	LenderSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lender_submissions_total",
			Help: "Total number of lender submission attempts by outcome",
		},
		[]string{"status", "reason"},
	)

	LenderGatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "lender_gateway_duration_seconds",
			Help: "Duration of external lender gateway calls in seconds",
		},
		[]string{"outcome"},
	)
)
