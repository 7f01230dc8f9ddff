package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onmeta_webhook_events_total",
		Help: "OnMeta webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	PayLinkPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paylink_payments_total",
		Help: "Pay link payment attempts by outcome.",
	}, []string{"outcome"})

	ChainLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chain_transaction_lookups_total",
		Help: "On-chain transaction lookups by outcome.",
	}, []string{"outcome"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_errors_total",
	}, []string{"source"})

	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
