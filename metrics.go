package compose

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics is nil when the container was created without WithMetrics; every method is nil-safe.
type metrics struct {
	activations        *prometheus.CounterVec
	activationFailures *prometheus.CounterVec
	activationDuration *prometheus.HistogramVec
	compositionErrors  *prometheus.CounterVec
	disposals          prometheus.Counter
	disposalFailures   prometheus.Counter
	openScopes         *prometheus.GaugeVec
}

func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		activations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activations_total",
				Help:      "Number of part activations by part and sharing boundary.",
			},
			[]string{"part", "boundary"},
		),
		activationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activation_failures_total",
				Help:      "Number of failed part activations by part.",
			},
			[]string{"part"},
		),
		activationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "activation_duration_seconds",
				Help:      "Time spent in activation recipes.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"part"},
		),
		compositionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "composition_errors_total",
				Help:      "Number of composition failures by kind.",
			},
			[]string{"kind"},
		),
		disposals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disposals_total",
				Help:      "Number of activations disposed.",
			},
		),
		disposalFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disposal_failures_total",
				Help:      "Number of activations that failed to dispose.",
			},
		),
		openScopes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_scopes",
				Help:      "Number of currently open scopes by boundary.",
			},
			[]string{"boundary"},
		),
	}

	for _, col := range []prometheus.Collector{
		m.activations,
		m.activationFailures,
		m.activationDuration,
		m.compositionErrors,
		m.disposals,
		m.disposalFailures,
		m.openScopes,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) activated(p *PartDescriptor, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.activationDuration.WithLabelValues(string(p.id)).Observe(d.Seconds())
	if err != nil {
		m.activationFailures.WithLabelValues(string(p.id)).Inc()
		return
	}
	boundary := "non-shared"
	if p.shared {
		boundary = string(p.boundary)
	}
	m.activations.WithLabelValues(string(p.id), boundary).Inc()
}

func (m *metrics) compositionFailed(err error) {
	if m == nil {
		return
	}
	m.compositionErrors.WithLabelValues(errorKind(err)).Inc()
}

func (m *metrics) disposed(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.disposalFailures.Inc()
		return
	}
	m.disposals.Inc()
}

func (m *metrics) scopeOpened(b Boundary) {
	if m == nil {
		return
	}
	m.openScopes.WithLabelValues(string(b)).Inc()
}

func (m *metrics) scopeClosed(b Boundary) {
	if m == nil {
		return
	}
	m.openScopes.WithLabelValues(string(b)).Dec()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrCompositionCycle):
		return "cycle"
	case errors.Is(err, ErrCardinalityViolation):
		return "cardinality"
	case errors.Is(err, ErrBoundaryNotAvailable):
		return "boundary"
	case errors.Is(err, ErrCatalogConflict):
		return "catalog"
	}
	return "other"
}
