// Package metrics provides Prometheus metrics for the follow-up engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apriori"

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	// Scheduling
	CallsScheduled *prometheus.CounterVec // by call_type
	CallsSkipped   *prometheus.CounterVec // by reason
	ScheduleErrors prometheus.Counter

	// Execution
	CallTransitions *prometheus.CounterVec // by from, to
	ExecutePasses   prometheus.Counter

	// Webhooks
	WebhooksReceived   *prometheus.CounterVec // by outcome
	SignatureFailures  prometheus.Counter
	HumanFollowupFlags prometheus.Counter

	// Analysis
	AnalysisOutcomes *prometheus.CounterVec // by outcome
	AnalysisLatency  prometheus.Histogram

	// Event sinks
	EventPublishErrors *prometheus.CounterVec // by sink

	// Jobs
	JobRuns *prometheus.CounterVec // by job, result
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsScheduled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_scheduled_total",
			Help:      "Follow-up calls created by the scheduling policy",
		}, []string{"call_type"}),
		CallsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_skipped_total",
			Help:      "Candidates skipped by the scheduling policy",
		}, []string{"reason"}),
		ScheduleErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_errors_total",
			Help:      "Candidates that failed to schedule",
		}),
		CallTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_transitions_total",
			Help:      "Follow-up call status transitions",
		}, []string{"from", "to"}),
		ExecutePasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execute_passes_total",
			Help:      "Execution passes run",
		}),
		WebhooksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Post-call webhooks by interpretation outcome",
		}, []string{"outcome"}),
		SignatureFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_signature_failures_total",
			Help:      "Webhook deliveries rejected by signature verification",
		}),
		HumanFollowupFlags: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "human_followup_flags_total",
			Help:      "Completed calls flagged for human follow-up",
		}),
		AnalysisOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_outcomes_total",
			Help:      "Transcript analyses by outcome",
		}, []string{"outcome"}),
		AnalysisLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall-clock duration of transcript analysis",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		EventPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Lifecycle events that a sink failed to accept",
		}, []string{"sink"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Periodic job passes by result (ok, locked, error)",
		}, []string{"job", "result"}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and CLI passes.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
