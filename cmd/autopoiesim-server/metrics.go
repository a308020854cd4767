package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

// Metrics exposes the simulation state to Prometheus. Gauges track the
// current census; counters accumulate ticks and rule firings across world
// replacements.
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal    prometheus.Counter
	particles     *prometheus.GaugeVec
	bonds         prometheus.Gauge
	firingsTotal  *prometheus.CounterVec
	tickMutations prometheus.Histogram
}

// NewMetrics builds the metric set on a private registry, so the endpoint
// serves only simulation metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopoiesim_ticks_total",
			Help: "Total simulation ticks applied.",
		}),
		particles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autopoiesim_particles",
			Help: "Live particles by kind.",
		}, []string{"kind"}),
		bonds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autopoiesim_bonds",
			Help: "Live bonds between links.",
		}),
		firingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopoiesim_rule_firings_total",
			Help: "Reaction rule firings by rule name.",
		}, []string{"rule"}),
		tickMutations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autopoiesim_tick_mutations",
			Help:    "World mutations applied per tick.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	m.registry.MustRegister(m.ticksTotal, m.particles, m.bonds, m.firingsTotal, m.tickMutations)
	return m
}

// ObserveTick records one applied tick.
func (m *Metrics) ObserveTick(stats autopoiesis.TickStats) {
	m.ticksTotal.Inc()
	m.SetCounts(stats.Counts)
	for rule, n := range stats.Firings {
		m.firingsTotal.WithLabelValues(rule).Add(float64(n))
	}
	m.tickMutations.Observe(float64(stats.Created + stats.Destroyed + stats.Bonded + stats.Unbonded))
}

// SetCounts updates the census gauges outside a tick, e.g. after the world is
// created or replaced.
func (m *Metrics) SetCounts(counts autopoiesis.Counts) {
	m.particles.WithLabelValues(autopoiesis.Substrate.String()).Set(float64(counts.Substrates))
	m.particles.WithLabelValues(autopoiesis.Catalyst.String()).Set(float64(counts.Catalysts))
	m.particles.WithLabelValues(autopoiesis.Link.String()).Set(float64(counts.Links))
	m.bonds.Set(float64(counts.Bonds))
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
