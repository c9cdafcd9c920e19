// Package metrics exposes Prometheus counters for the execution pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Webhook signals by side and final status"},
		[]string{"side", "status"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders dispatched to the exchange by outcome"},
		[]string{"side", "outcome"},
	)
	ExchangeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exchange_requests_total", Help: "Exchange calls by endpoint and status code"},
		[]string{"endpoint", "code"},
	)
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execution_duration_seconds",
			Help:    "Wall time from validated signal to response",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"side"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, OrdersTotal, ExchangeRequestsTotal, ExecutionDuration)
}
