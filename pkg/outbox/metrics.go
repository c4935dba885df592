package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal   *prometheus.CounterVec
	dispatchTotal  *prometheus.CounterVec
	deadTotal      *prometheus.CounterVec
	revokedTotal   *prometheus.CounterVec
	cancelledTotal *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	pending *prometheus.GaugeVec
	locked  *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasks",
			Name:      "enqueue_total",
			Help:      "Total number of task enqueue operations.",
		}, []string{"table", "topic"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasks",
			Name:      "dispatch_total",
			Help:      "Total number of task dispatch operations.",
		}, []string{"table", "topic", "result"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasks",
			Name:      "dead_total",
			Help:      "Total number of tasks that exhausted their attempts.",
		}, []string{"table", "topic"}),
		revokedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasks",
			Name:      "revoked_total",
			Help:      "Total number of pending tasks revoked before dispatch.",
		}, []string{"table"}),
		cancelledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasks",
			Name:      "cancelled_total",
			Help:      "Total number of in-flight dispatches cancelled by revocation.",
		}, []string{"table"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tasks",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency distribution for task dispatch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"table", "topic", "result"}),
		pending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tasks",
			Name:      "pending",
			Help:      "Current number of pending (unpublished) tasks.",
		}, []string{"table"}),
		locked: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tasks",
			Name:      "locked",
			Help:      "Current number of claimed (unpublished) tasks.",
		}, []string{"table"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
