package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type promMetrics struct {
	receivedTotal    *prometheus.CounterVec
	forwardedTotal   *prometheus.CounterVec
	failedTotal      *prometheus.CounterVec
	retriedTotal     *prometheus.CounterVec
	deadTotal        *prometheus.CounterVec
	duplicateTotal   *prometheus.CounterVec
	rateLimitedTotal *prometheus.CounterVec

	forwardLatency *prometheus.HistogramVec

	queueDepth   prometheus.Gauge
	dlqDepth     prometheus.Gauge
	breakerState prometheus.Gauge
}

var promSingleton = sync.OnceValue(func() *promMetrics {
	return &promMetrics{
		receivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "received_total",
			Help:      "Total number of webhook deliveries admitted.",
		}, []string{"shop"}),
		forwardedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "forwarded_total",
			Help:      "Total number of events forwarded successfully.",
		}, []string{"shop"}),
		failedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "failed_total",
			Help:      "Total number of failed forward attempts.",
		}, []string{"shop"}),
		retriedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "retried_total",
			Help:      "Total number of events requeued for retry.",
		}, []string{"shop"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "dead_total",
			Help:      "Total number of events moved to the dead letter queue.",
		}, []string{"shop"}),
		duplicateTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "duplicate_total",
			Help:      "Total number of duplicate deliveries dropped.",
		}, []string{"shop"}),
		rateLimitedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "rate_limited_total",
			Help:      "Total number of deliveries rejected by the shop rate limit.",
		}, []string{"shop"}),
		forwardLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "forward_latency_seconds",
			Help:      "Latency distribution for forwarding an event.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"shop", "result"}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "queue_depth",
			Help:      "Current number of events waiting in the queue.",
		}),
		dlqDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "dlq_depth",
			Help:      "Current number of events parked in the dead letter queue.",
		}),
		breakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "breaker_open",
			Help:      "Whether the forwarding circuit breaker is open (1/0).",
		}),
	}
})

func getPromMetrics() *promMetrics {
	return promSingleton()
}
