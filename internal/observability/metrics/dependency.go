package metrics

import "github.com/prometheus/client_golang/prometheus"

// dependencyMetrics implements resilience.Observer for both binaries.
type dependencyMetrics struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func newDependencyMetrics(service string) *dependencyMetrics {
	return &dependencyMetrics{
		service: service,
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "retries_total",
				Help:      "Retried calls to external dependencies.",
			},
			[]string{"service", "operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dependency",
				Name:      "circuit_state",
				Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"service", "operation"},
		),
	}
}

func (d *dependencyMetrics) register(registry *prometheus.Registry) {
	registry.MustRegister(d.retriesTotal, d.breakerState)
}

func (d *dependencyMetrics) RecordRetry(operation string) {
	d.retriesTotal.WithLabelValues(d.service, operation).Inc()
}

func (d *dependencyMetrics) RecordBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	d.breakerState.WithLabelValues(d.service, operation).Set(value)
}
