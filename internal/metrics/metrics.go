// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts inbound webhook requests by event type and
	// HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "submirror",
		Name:      "webhook_requests_total",
		Help:      "Total billing webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "submirror",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// EventsTotal counts dispatched billing events by type and outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "submirror",
		Name:      "events_total",
		Help:      "Dispatched billing events by type and outcome.",
	}, []string{"event_type", "outcome"})

	// PlanChangesTotal counts plan change attempts by resulting action.
	PlanChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "submirror",
		Name:      "plan_changes_total",
		Help:      "Plan change attempts by resulting action.",
	}, []string{"action"})

	// SyncsTotal counts reconciliation runs by outcome.
	SyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "submirror",
		Name:      "syncs_total",
		Help:      "Reconciliation runs by outcome (repaired, in_sync, error).",
	}, []string{"outcome"})
)
