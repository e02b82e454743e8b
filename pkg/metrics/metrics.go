package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tightship",
		Name:      "webhook_events_total",
		Help:      "Billing webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	LimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tightship",
		Name:      "limit_rejections_total",
		Help:      "Mutations rejected by usage limits, by resource.",
	}, []string{"resource"})

	PublicAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tightship",
		Name:      "public_api_requests_total",
		Help:      "Public menu API requests by outcome.",
	}, []string{"outcome"})
)
