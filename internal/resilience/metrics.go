package resilience

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState exposes the current breaker state as a gauge per target.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state transitions per target.
	BreakerTransitions *prometheus.CounterVec
	// BreakerOpenedTotal counts how often a breaker opened per target.
	BreakerOpenedTotal *prometheus.CounterVec
)

// MustRegisterMetrics initialises and registers breaker collectors.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"target"})
		BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Count of circuit breaker state transitions.",
		}, []string{"target", "from", "to"})
		BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_opened_total",
			Help:      "Number of times a circuit breaker opened.",
		}, []string{"target"})

		register(reg, BreakerState, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				BreakerState = v
			}
		})
		register(reg, BreakerTransitions, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BreakerTransitions = v
			}
		})
		register(reg, BreakerOpenedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BreakerOpenedTotal = v
			}
		})
	})
}

func register(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register breaker metric: %w", err))
	}
}
