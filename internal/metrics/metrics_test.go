package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	SignalsTotal.WithLabelValues("long", "sent").Inc()
	OrdersTotal.WithLabelValues("long", "filled").Inc()
	ExchangeRequestsTotal.WithLabelValues("info", "200").Inc()
	ExecutionDuration.WithLabelValues("long").Observe(0.1)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"signals_total":              false,
		"orders_total":               false,
		"exchange_requests_total":    false,
		"execution_duration_seconds": false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}
