package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Consumer metrics
	EventsConsumed   *prometheus.CounterVec
	MessagesRejected *prometheus.CounterVec
	RoutingMisses    *prometheus.CounterVec
	Reconnects       *prometheus.CounterVec
	DuplicateEvents  *prometheus.CounterVec

	// Delivery metrics
	Deliveries       *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	Notifications    *prometheus.CounterVec
	RetryAttempts    *prometheus.CounterVec
	RetrySweepLength prometheus.Histogram

	// Store metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg. A nil reg leaves
// them unregistered.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		EventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "events_total",
			Help:      "Total number of events taken off the queue",
		}, []string{"event_type", "outcome"}),
		MessagesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_rejected_total",
			Help:      "Total number of messages nacked without requeue",
		}, []string{"reason"}),
		RoutingMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "routing_misses_total",
			Help:      "Total number of events with no registered handler",
		}, []string{"event_type"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of broker connection attempts",
		}, []string{"status"}),
		DuplicateEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "duplicate_events_total",
			Help:      "Total number of events dropped by the dedup guard",
		}, []string{"event_type"}),

		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Total number of channel delivery attempts",
		}, []string{"channel", "status"}),
		DeliveryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "duration_seconds",
			Help:      "Duration of channel delivery attempts",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "records_total",
			Help:      "Total number of notification records by final status",
		}, []string{"event_type", "status"}),
		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts by outcome",
		}, []string{"status"}),
		RetrySweepLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "retry_sweep_batch_size",
			Help:      "Number of retryable records picked up per sweep",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// NewNop returns metrics that are not registered anywhere.
func NewNop() *Metrics {
	return New("notification", nil)
}
