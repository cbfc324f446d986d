// Package metrics exposes the Prometheus collectors for the route engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the engine's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	routeCompiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeforge",
			Subsystem: "compiler",
			Name:      "compiles_total",
			Help:      "Total number of route compile attempts.",
		},
		[]string{"tenant_id", "result"},
	)

	routeDeploys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeforge",
			Subsystem: "registry",
			Name:      "deploys_total",
			Help:      "Total number of route deploy/redeploy operations.",
		},
		[]string{"tenant_id", "result"},
	)

	nodeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeforge",
			Subsystem: "executor",
			Name:      "node_executions_total",
			Help:      "Total number of node executions, by node type and outcome.",
		},
		[]string{"node_type", "status"},
	)

	nodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "routeforge",
			Subsystem: "executor",
			Name:      "node_duration_seconds",
			Help:      "Duration of individual node executions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"node_type"},
	)

	sagaTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeforge",
			Subsystem: "saga",
			Name:      "transfers_total",
			Help:      "Total number of saga transfer attempts, by terminal state.",
		},
		[]string{"saga_state"},
	)

	sagaTransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "routeforge",
			Subsystem: "saga",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of a saga transfer from debit attempt to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	eventBusSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "routeforge",
			Subsystem: "eventbus",
			Name:      "subscriptions",
			Help:      "Current number of live event bus subscriptions.",
		},
	)

	eventBusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routeforge",
			Subsystem: "eventbus",
			Name:      "dropped_events_total",
			Help:      "Total number of events dropped due to a full subscriber buffer or emitter cap.",
		},
		[]string{"reason"},
	)
)

func init() {
	Registry.MustRegister(
		routeCompiles,
		routeDeploys,
		nodeExecutions,
		nodeDuration,
		sagaTransfers,
		sagaTransferDuration,
		eventBusSubscriptions,
		eventBusDropped,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics,
// for an external transport to mount.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordCompile records the outcome of a route compile attempt.
func RecordCompile(tenantID string, ok bool) {
	routeCompiles.WithLabelValues(tenantID, resultLabel(ok)).Inc()
}

// RecordDeploy records the outcome of a route deploy/redeploy operation.
func RecordDeploy(tenantID string, ok bool) {
	routeDeploys.WithLabelValues(tenantID, resultLabel(ok)).Inc()
}

// RecordNodeExecution records a single node execution's status and duration.
func RecordNodeExecution(nodeType, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	nodeExecutions.WithLabelValues(nodeType, status).Inc()
	nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordSagaTransfer records the terminal saga state and total transfer duration.
func RecordSagaTransfer(sagaState string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	sagaTransfers.WithLabelValues(sagaState).Inc()
	sagaTransferDuration.Observe(duration.Seconds())
}

// SetEventBusSubscriptions sets the current live subscription gauge.
func SetEventBusSubscriptions(n int) {
	eventBusSubscriptions.Set(float64(n))
}

// RecordEventDropped records an event dropped by the event bus.
func RecordEventDropped(reason string) {
	eventBusDropped.WithLabelValues(reason).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
