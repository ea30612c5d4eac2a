package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the archive transport collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// requests counts completed fetches.
	// Labels: outcome (ok, not_found, http_error, exhausted, error)
	requests *prometheus.CounterVec

	// attempts counts individual HTTP attempts, retries included.
	attempts prometheus.Counter

	// retries counts retried attempts by fault class.
	// Labels: fault (connect, reset)
	retries *prometheus.CounterVec

	// duration measures whole fetches, retries and backoff included.
	duration prometheus.Histogram

	// bytes counts body bytes received from the archive.
	bytes prometheus.Counter
}

// NewMetrics registers the transport collectors on reg. A nil reg creates
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Archive fetches by final outcome",
		}, []string{"outcome"}),
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "HTTP attempts against the archive, retries included",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Retried archive attempts by fault class",
		}, []string{"fault"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "specviewer",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Archive fetch latency including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "specviewer",
			Subsystem: "fetch",
			Name:      "bytes_total",
			Help:      "Response bytes received from the archive",
		}),
	}
}

func (m *Metrics) observeAttempt() {
	if m == nil {
		return
	}

	m.attempts.Inc()
}

func (m *Metrics) observeRetry(kind faultKind) {
	if m == nil {
		return
	}

	m.retries.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeResult(outcome string, seconds float64, size int) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
	m.bytes.Add(float64(size))
}
