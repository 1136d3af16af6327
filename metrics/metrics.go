// Package metrics exposes Prometheus counters for the garage service.
package metrics

import (
	"errors"
	"net/http"

	"fadedreams/garage/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	partsConsumed   prometheus.Counter
	outboxPublished *prometheus.CounterVec
}

// New registers the counters on a fresh registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "garage",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		partsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "garage",
			Name:      "parts_consumed_total",
			Help:      "Stock units taken from PART items by parts assignments.",
		}),
		outboxPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "garage",
			Name:      "outbox_published_total",
			Help:      "Outbox events handed to the broker by outcome.",
		}, []string{"outcome"}),
	}
}

// Outcome classifies an operation result for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, domain.ErrCustomerDisagreed):
		return "customer_disagreed"
	case errors.Is(err, domain.ErrRepairCompleted):
		return "repair_completed"
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrActionStock):
		return "action_stock"
	default:
		return "error"
	}
}

// ObserveOperation counts one finished operation.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
}

// AddPartsConsumed counts stock units taken by a parts assignment.
func (m *Metrics) AddPartsConsumed(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.partsConsumed.Add(float64(units))
}

// ObservePublish counts one outbox publish attempt.
func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.outboxPublished.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
