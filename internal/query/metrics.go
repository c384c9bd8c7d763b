package query

import (
	"errors"
	"time"

	"github.com/johanforsgren/prdeck/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors. A nil registerer leaves
// them unregistered, which keeps tests independent.
type Metrics struct {
	lookups       *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	populations   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: kind, result (hit, miss)
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prdeck",
			Subsystem: "query",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by resource kind and result",
		}, []string{"kind", "result"}),

		// Labels: kind, outcome (success, error, cancelled)
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prdeck",
			Subsystem: "query",
			Name:      "fetches_total",
			Help:      "Remote fetches by resource kind and outcome",
		}, []string{"kind", "outcome"}),

		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "prdeck",
			Subsystem: "query",
			Name:      "fetch_duration_seconds",
			Help:      "Remote fetch latency including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),

		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prdeck",
			Subsystem: "query",
			Name:      "retries_total",
			Help:      "Fetch retries by resource kind",
		}, []string{"kind"}),

		// Labels: mutation, outcome (committed, rolled_back)
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prdeck",
			Subsystem: "query",
			Name:      "mutations_total",
			Help:      "Optimistic mutations by name and outcome",
		}, []string{"mutation", "outcome"}),

		populations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prdeck",
			Subsystem: "query",
			Name:      "populations_total",
			Help:      "Cache entries written by cross-population",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) lookup(kind cache.Kind, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) fetched(kind cache.Kind, elapsed time.Duration, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	m.fetches.WithLabelValues(string(kind), outcome).Inc()
	m.fetchDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) retried(kind cache.Kind) {
	m.retries.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) mutated(name string, err error) {
	outcome := "committed"
	if err != nil {
		outcome = "rolled_back"
	}
	m.mutations.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) populated(from, to cache.Kind) {
	m.populations.WithLabelValues(string(from), string(to)).Inc()
}
