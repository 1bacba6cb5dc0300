// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus collectors for the streaming daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xteam",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	}, []string{"scope"})

	RateLimitFailOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xteam",
		Name:      "ratelimit_failopen_total",
		Help:      "Admissions granted because the rate limit store was unreachable",
	})

	AuthRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xteam",
		Name:      "auth_rejected_total",
		Help:      "Credential verification failures by reason",
	}, []string{"reason"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "xteam",
		Name:      "ws_connections_active",
		Help:      "Currently open websocket sessions",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xteam",
		Name:      "ws_connections_total",
		Help:      "Total accepted websocket sessions",
	})

	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "xteam",
		Name:      "subscriptions_active",
		Help:      "Currently registered (connection, topic) subscriptions",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xteam",
		Name:      "events_published_total",
		Help:      "Pipeline events accepted by the fan-out hub",
	}, []string{"event_type"})

	QueueDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xteam",
		Name:      "queue_dropped_total",
		Help:      "Outbound queue events dropped by reason (backpressure)",
	}, []string{"reason"})
)

// IncRateLimited records a rate limit rejection for the given scope.
func IncRateLimited(scope string) {
	if scope == "" {
		scope = "unknown"
	}
	RateLimitExceededTotal.WithLabelValues(scope).Inc()
}

// IncAuthRejected records a credential rejection with a concrete reason.
func IncAuthRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	AuthRejectedTotal.WithLabelValues(reason).Inc()
}

// IncEventPublished records an event accepted for fan-out.
func IncEventPublished(eventType string) {
	EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// IncQueueDrop records a dropped outbound event with a concrete reason.
func IncQueueDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	QueueDroppedTotal.WithLabelValues(reason).Inc()
}
