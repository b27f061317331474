// Package metrics exposes admission decisions as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "admit"

// Collector owns the admission metrics and the registry they live in.
//
// Metrics:
//   - admit_decisions_total: checks by limiter and result (allowed, denied)
//   - admit_leaky_dispatched_total: items handed to leaky bucket handlers
//   - admit_leaky_queue_depth: current leaky bucket queue length
type Collector struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	dispatched *prometheus.CounterVec
}

// NewCollector registers the admission metrics with registry. A nil registry
// gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of admission checks by result",
			},
			[]string{"limiter", "result"},
		),
		dispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "leaky",
				Name:      "dispatched_total",
				Help:      "Total number of queued items dispatched to handlers",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(c.decisions, c.dispatched)
	return c
}

// RecordDecision counts one admission check.
func (c *Collector) RecordDecision(limiter string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	c.decisions.WithLabelValues(limiter, result).Inc()
}

// RecordDispatch counts one item handed to a leaky bucket handler.
func (c *Collector) RecordDispatch(limiter string) {
	c.dispatched.WithLabelValues(limiter).Inc()
}

// TrackQueue exports fn as the queue depth gauge for limiter. Tracking the
// same limiter name twice keeps the first function.
func (c *Collector) TrackQueue(limiter string, fn func() int) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "leaky",
			Name:        "queue_depth",
			Help:        "Current number of items waiting in the leaky bucket queue",
			ConstLabels: prometheus.Labels{"limiter": limiter},
		},
		func() float64 { return float64(fn()) },
	)

	if err := c.registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
