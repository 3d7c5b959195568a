// Package metrics exposes Prometheus collectors for the cache, the resolution
// service, the click recorder and the HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joshdurbin/shortlink/internal/cache"
)

// Cache event label values
const (
	EventHit          = "hit"
	EventMiss         = "miss"
	EventEviction     = "eviction"
	EventInvalidation = "invalidation"
	EventExpiration   = "expiration"
)

// Metrics holds every collector registered by the process
type Metrics struct {
	cacheEvents      *prometheus.CounterVec
	resolveDuration  *prometheus.HistogramVec
	clicksFlushed    prometheus.Counter
	clickFlushErrors prometheus.Counter
	clicksPending    prometheus.Gauge
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New creates the collectors under namespace and registers them with reg
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Cache events by type.",
		}, []string{"event"}),
		resolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "Time taken to resolve a short key, by outcome.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"outcome"}),
		clicksFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clicks",
			Name:      "flushed_total",
			Help:      "Clicks written to the record store.",
		}),
		clickFlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clicks",
			Name:      "flush_errors_total",
			Help:      "Failed click counter writes.",
		}),
		clicksPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clicks",
			Name:      "pending",
			Help:      "Clicks recorded but not yet written to the record store.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Hit records a cache hit
func (m *Metrics) Hit() { m.cacheEvents.WithLabelValues(EventHit).Inc() }

// Miss records a cache miss
func (m *Metrics) Miss() { m.cacheEvents.WithLabelValues(EventMiss).Inc() }

// Eviction records an LRU eviction
func (m *Metrics) Eviction() { m.cacheEvents.WithLabelValues(EventEviction).Inc() }

// Invalidation records the removal of a resident entry
func (m *Metrics) Invalidation() { m.cacheEvents.WithLabelValues(EventInvalidation).Inc() }

// Expiration records an entry dropped by the TTL
func (m *Metrics) Expiration() { m.cacheEvents.WithLabelValues(EventExpiration).Inc() }

// ObserveResolve records the latency of one resolve call
func (m *Metrics) ObserveResolve(outcome string, d time.Duration) {
	m.resolveDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ClicksFlushed records n clicks persisted to the store
func (m *Metrics) ClicksFlushed(n int64) { m.clicksFlushed.Add(float64(n)) }

// ClickFlushFailed records one failed click write
func (m *Metrics) ClickFlushFailed() { m.clickFlushErrors.Inc() }

// SetPendingClicks reports the number of buffered clicks
func (m *Metrics) SetPendingClicks(n int64) { m.clicksPending.Set(float64(n)) }

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var _ cache.Metrics = (*Metrics)(nil)
