package opts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records resolution outcomes.
type Metrics struct {
	runs     *prometheus.CounterVec
	warnings *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the resolution collectors on reg. A nil reg falls back
// to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailrisk_resolutions_total",
				Help: "Total number of option resolution runs by outcome",
			},
			[]string{"outcome"},
		),
		warnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailrisk_resolution_warnings_total",
				Help: "Total number of explicit values dropped during resolution",
			},
			[]string{"option"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tailrisk_resolution_duration_seconds",
				Help:    "Time spent resolving one configuration",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
	}
}

// WithMetrics records resolution metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(cfg *engineConfig) {
		cfg.metrics = m
	}
}

func (m *Metrics) observeRun(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = KindName(err)
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeWarning(option string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(option).Inc()
}
