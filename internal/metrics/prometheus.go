// Package metrics exposes observational-only counters and histograms for the
// supervisor loop and the dispatcher. Per the design notes, these values are never consulted for
// correctness decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveriesReceived counts deliveries pulled off the broker, by queue.
	DeliveriesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_deliveries_received_total",
			Help: "Total number of deliveries received from the broker",
		},
		[]string{"queue"},
	)

	// AcksConfirmed counts deliveries the supervisor acked, by queue.
	AcksConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_acks_confirmed_total",
			Help: "Total number of deliveries acknowledged to the broker",
		},
		[]string{"queue"},
	)

	// NacksConfirmed counts deliveries the supervisor nacked-with-requeue,
	// by queue.
	NacksConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_nacks_confirmed_total",
			Help: "Total number of deliveries nacked with requeue",
		},
		[]string{"queue"},
	)

	// DeadLettered counts payloads republished to an error_* queue after
	// exhausting the retry schedule.
	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_dead_lettered_total",
			Help: "Total number of payloads published to a dead-letter queue",
		},
		[]string{"queue"},
	)

	// DispatchDuration tracks how long a single delivery spends in the
	// dispatcher, including retry sleeps.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifyd_dispatch_duration_seconds",
			Help:    "Duration of a single delivery's time in the dispatcher",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"queue"},
	)

	// ResubscribeTotal counts resubscribe cycles the supervisor has run.
	ResubscribeTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyd_resubscribe_total",
			Help: "Total number of supervisor resubscribe cycles",
		},
	)
)
