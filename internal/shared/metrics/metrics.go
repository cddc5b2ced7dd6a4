package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cosmo_migrator"

// Metrics groups the collectors of one migration process. Every method is
// safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	entitiesTotal      *prometheus.CounterVec
	fetchFailuresTotal *prometheus.CounterVec
	writeLatency       *prometheus.HistogramVec
	mappings           prometheus.Gauge
	runState           *prometheus.GaugeVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		entitiesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_total",
			Help:      "Entities processed, by kind and outcome.",
		}, []string{"kind", "status"}),
		fetchFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Source listings that failed and were treated as empty.",
		}, []string{"kind"}),
		writeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_latency_seconds",
			Help:      "Latency distribution for destination writes.",
			Buckets: []float64{
				0.001, 0.005,
				0.01, 0.05,
				0.1, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"kind"}),
		mappings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identity_mappings",
			Help:      "Entries currently held by the identity map.",
		}),
		runState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_state",
			Help:      "1 for the orchestrator state the run is in, 0 otherwise.",
		}, []string{"state"}),
	}
}

// Registry exposes the collectors for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveEntity counts one entity outcome.
func (m *Metrics) ObserveEntity(kind, status string) {
	if m == nil {
		return
	}
	m.entitiesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveFetchFailure counts a failed source listing.
func (m *Metrics) ObserveFetchFailure(kind string) {
	if m == nil {
		return
	}
	m.fetchFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveWrite records the latency of one destination write.
func (m *Metrics) ObserveWrite(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.writeLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// SetMappings reports the identity map size.
func (m *Metrics) SetMappings(n int) {
	if m == nil {
		return
	}
	m.mappings.Set(float64(n))
}

// SetState marks state as current and clears previous.
func (m *Metrics) SetState(previous, state string) {
	if m == nil {
		return
	}
	if previous != "" && previous != state {
		m.runState.WithLabelValues(previous).Set(0)
	}
	m.runState.WithLabelValues(state).Set(1)
}
