// Package metrics exposes prometheus collectors for dialogue turns and the
// memory store. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "serene"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry           *prometheus.Registry
	turns              *prometheus.CounterVec
	generationFailures *prometheus.CounterVec
	extractions        *prometheus.CounterVec
	facts              prometheus.Gauge
}

// Extraction outcomes.
const (
	ExtractionAdded     = "added"
	ExtractionNoop      = "noop"
	ExtractionMalformed = "malformed"
	ExtractionFailed    = "failed"
	ExtractionDropped   = "dropped"
)

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Dialogue turns routed, by phase.",
		}, []string{"phase"}),
		generationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Strategy generation failures, by phase.",
		}, []string{"phase"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_extractions_total",
			Help:      "Memory extraction attempts, by outcome.",
		}, []string{"outcome"}),
		facts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_facts",
			Help:      "Facts currently held by the memory store.",
		}),
	}
	reg.MustRegister(
		m.turns,
		m.generationFailures,
		m.extractions,
		m.facts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTurn(phase string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordGenerationFailure(phase string) {
	if m == nil {
		return
	}
	m.generationFailures.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetFacts(n int) {
	if m == nil {
		return
	}
	m.facts.Set(float64(n))
}
