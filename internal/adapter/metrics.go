package adapter

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metrics counts adapter construction and operation outcomes.
type Metrics struct {
	constructed  *prometheus.CounterVec
	constructErr *prometheus.CounterVec
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// NewMetrics registers adapter metrics on reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	if reg == nil {
		registry := prometheus.NewRegistry()
		reg = registry
		gatherer = registry
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	} else {
		gatherer = prometheus.DefaultGatherer
	}

	return &Metrics{
		constructed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "positions",
			Subsystem: "adapter",
			Name:      "constructed_total",
			Help:      "Adapters constructed, by platform and chain.",
		}, []string{"platform", "chain"}),
		constructErr: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "positions",
			Subsystem: "adapter",
			Name:      "construct_errors_total",
			Help:      "Adapter constructor failures, by platform and chain.",
		}, []string{"platform", "chain"}),
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "positions",
			Subsystem: "adapter",
			Name:      "operations_total",
			Help:      "Adapter operations, by platform, operation and result.",
		}, []string{"platform", "operation", "result"}),
		latency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "positions",
			Subsystem: "adapter",
			Name:      "operation_seconds",
			Help:      "Adapter operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "operation"}),
		gatherer: gatherer,
	}
}

// Gatherer exposes the registry the metrics were registered on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Handler serves the gathered metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// WriteText writes every gathered metric family to w in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("write metric %s: %w", family.GetName(), err)
		}
	}
	return nil
}

func (m *Metrics) incConstructed(platform, chain string) {
	m.constructed.WithLabelValues(platform, chain).Inc()
}

func (m *Metrics) incConstructError(platform, chain string) {
	m.constructErr.WithLabelValues(platform, chain).Inc()
}

// ObserveOperation records one adapter operation.
func (m *Metrics) ObserveOperation(platform, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(platform, operation, result).Inc()
	m.latency.WithLabelValues(platform, operation).Observe(seconds)
}
