// Package telemetry holds the Prometheus collectors and OpenTelemetry helpers
// shared by the registry clients.
package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "wally"

// API labels for request metrics.
const (
	APITree     = "tree"
	APIBlob     = "blob"
	APIMetadata = "metadata"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Metrics is the set of collectors for one registry engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered on reg (for example by another engine sharing
// the registry) are reused. A nil reg returns nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	return &Metrics{
		requests: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total number of upstream requests by API and outcome",
		}, []string{"api", "outcome"})),

		requestDuration: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Upstream request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api"})),

		cacheLookups: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_lookups_total",
			Help:      "Index cache lookups by cache and result",
		}, []string{"cache", "result"})),

		resolutions: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "resolutions_total",
			Help:      "Version resolutions by outcome",
		}, []string{"outcome"})),
	}
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRequest records one upstream request.
func (m *Metrics) ObserveRequest(api, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(api, outcome).Inc()
	m.requestDuration.WithLabelValues(api).Observe(d.Seconds())
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveResolution records the outcome of a constraint resolution.
func (m *Metrics) ObserveResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// Requests exposes the request counter, mainly for tests.
func (m *Metrics) Requests() *prometheus.CounterVec { return m.requests }

// CacheLookups exposes the cache lookup counter.
func (m *Metrics) CacheLookups() *prometheus.CounterVec { return m.cacheLookups }

// Resolutions exposes the resolution counter.
func (m *Metrics) Resolutions() *prometheus.CounterVec { return m.resolutions }
