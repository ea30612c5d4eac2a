package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the search and aggregation collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// attempts counts branch attempts.
	// Labels: outcome (found, not_found, fault)
	attempts *prometheus.CounterVec

	// searches counts fallback searches.
	// Labels: result (found, exhausted)
	searches *prometheus.CounterVec

	// aggregations counts Aggregate calls that reached the engine.
	// Labels: result (ok, no_data, invalid, error)
	aggregations *prometheus.CounterVec

	traces prometheus.Histogram
}

// NewMetrics registers the retrieval collectors on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "search",
			Name:      "attempts_total",
			Help:      "Branch attempts by outcome",
		}, []string{"outcome"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Fallback searches by result",
		}, []string{"result"}),
		aggregations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "aggregate",
			Name:      "requests_total",
			Help:      "Object aggregations by result",
		}, []string{"result"}),
		traces: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "specviewer",
			Subsystem: "aggregate",
			Name:      "traces",
			Help:      "Traces per computed bundle",
			Buckets:   prometheus.LinearBuckets(1, 4, 8),
		}),
	}
}

// RegisterCacheStats exposes the result cache counters as gauges.
func RegisterCacheStats(reg prometheus.Registerer, engine *Engine) {
	factory := promauto.With(reg)

	stat := func(name, help string, read func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "specviewer",
			Subsystem: "result_cache",
			Name:      name,
			Help:      help,
		}, read)
	}

	stat("entries", "Bundles held in the result cache", func() float64 {
		return float64(engine.CacheStats().Entries)
	})
	stat("hits", "Result cache hits since start", func() float64 {
		return float64(engine.CacheStats().Hits)
	})
	stat("misses", "Result cache misses since start", func() float64 {
		return float64(engine.CacheStats().Misses)
	})
	stat("shared", "Aggregations that joined an in-flight computation", func() float64 {
		return float64(engine.CacheStats().Shared)
	})
}

func (m *Metrics) observeAttempt(outcome Outcome) {
	if m == nil {
		return
	}

	m.attempts.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) observeSearch(found bool) {
	if m == nil {
		return
	}

	result := "exhausted"
	if found {
		result = "found"
	}

	m.searches.WithLabelValues(result).Inc()
}

func (m *Metrics) observeAggregation(result string, traces int) {
	if m == nil {
		return
	}

	m.aggregations.WithLabelValues(result).Inc()

	if result == resultOK {
		m.traces.Observe(float64(traces))
	}
}
