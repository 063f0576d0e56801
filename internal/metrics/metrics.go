// Package metrics registers the Prometheus instruments shared by the API and
// the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationTotal counts upload validations by outcome (accepted/rejected).
	ValidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyforge",
		Subsystem: "upload",
		Name:      "validations_total",
		Help:      "Upload validations by outcome.",
	}, []string{"outcome"})

	// ProcessingTotal counts pipeline runs by terminal state.
	ProcessingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyforge",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by terminal state.",
	}, []string{"state"})

	// ProcessingDuration observes end-to-end pipeline run time.
	ProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storyforge",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "End-to-end pipeline run duration.",
		Buckets:   prometheus.DefBuckets,
	})
)
