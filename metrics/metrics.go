// Package metrics exposes the distributor's Prometheus counters. The
// counter names are load-bearing: existing dashboards query them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DistributorMetrics holds the counters emitted by the dispatcher.
type DistributorMetrics struct {
	successTotal prometheus.Counter
	failureTotal prometheus.Counter
}

// NewDistributorMetrics registers the distributor's counters against
// registry and returns a handle for recording them.
func NewDistributorMetrics(registry *prometheus.Registry) (*DistributorMetrics, error) {
	m := &DistributorMetrics{
		successTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distributor_analyzer_success_total",
			Help: "Total successful analyzer calls",
		}),
		failureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distributor_analyzer_failure_total",
			Help: "Total failed analyzer calls",
		}),
	}

	for _, c := range []prometheus.Collector{m.successTotal, m.failureTotal} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordSuccess increments the success counter.
func (m *DistributorMetrics) RecordSuccess() {
	m.successTotal.Inc()
}

// RecordFailure increments the failure counter.
func (m *DistributorMetrics) RecordFailure() {
	m.failureTotal.Inc()
}

// Handler returns an http.Handler serving the standard Prometheus text
// exposition format for registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
