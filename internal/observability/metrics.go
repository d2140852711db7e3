package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "delivery"

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "order_transitions_total", Help: "Order transition attempts by outcome"},
		[]string{"from", "to", "outcome"},
	)
	TransitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_transition_duration_seconds",
		Help:      "Time to evaluate and persist a transition",
		Buckets:   prometheus.DefBuckets,
	})

	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_samples_ingested_total", Help: "Location samples accepted by the hub"},
		[]string{"source"},
	)
	SamplesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_samples_dropped_total", Help: "Location samples rejected by the hub"},
		[]string{"reason"},
	)
	OrderMismatches = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "location_order_mismatches_total", Help: "Sample order ids refused because the rider is not linked to the order"})
	ActiveSessions  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "tracking_sessions_active", Help: "Riders currently tracked"})
	Subscribers     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "tracking_subscribers", Help: "Open tracking subscriptions"})
	Evictions       = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tracking_evictions_total", Help: "Sessions evicted for inactivity"})

	BroadcastsDelivered = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tracking_broadcasts_delivered_total", Help: "Events queued to subscribers"})
	BroadcastsDropped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tracking_broadcasts_dropped_total", Help: "Events dropped because a subscriber was full"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
