package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts Stripe webhook deliveries by event type and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "versewise",
		Name:      "webhook_events_total",
		Help:      "Total Stripe webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "versewise",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// EntitlementTransitionsTotal counts applied entitlement transitions by target status.
	EntitlementTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "versewise",
		Name:      "entitlement_transitions_total",
		Help:      "Entitlement transitions applied, labeled by resulting status.",
	}, []string{"to"})

	// ChatRequestsTotal counts metered chat requests by outcome.
	ChatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "versewise",
		Name:      "chat_requests_total",
		Help:      "Chat requests by outcome (ok, denied, upstream_error).",
	}, []string{"outcome"})
)
