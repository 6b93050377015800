package consol

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the consolidation engine. A nil
// *Metrics records nothing.
type Metrics struct {
	matches  *prometheus.CounterVec
	rules    *prometheus.CounterVec
	sources  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	cache    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the engine metrics against registerer, falling back to
// the default Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asreported_consol_matches_total",
		Help: "Rows resolved by each consolidation stage.",
	}, []string{"stage"})
	rules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asreported_consol_rules_total",
		Help: "Combination rule events partitioned by outcome.",
	}, []string{"outcome"})
	sources := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asreported_consol_sources_total",
		Help: "Comparison sources folded into the base, partitioned by status.",
	}, []string{"status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asreported_consol_source_duration_seconds",
		Help:    "Duration in seconds of one consolidation iteration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asreported_consol_cache_total",
		Help: "Consolidation cache lookups partitioned by result.",
	}, []string{"result"})
	registerer.MustRegister(matches, rules, sources, duration, cache)
	return &Metrics{matches: matches, rules: rules, sources: sources, duration: duration, cache: cache}
}

func (m *Metrics) observeMatches(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.matches.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) observeRule(outcome string) {
	if m == nil {
		return
	}
	m.rules.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSource(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sources.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}
