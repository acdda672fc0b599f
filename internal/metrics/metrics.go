// Package metrics bundles the service's Prometheus instruments behind
// nil-safe helpers so packages can record without caring whether a
// registry was wired (tests usually pass nil).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	trades           *prometheus.CounterVec
	quoteCacheHits   prometheus.Counter
	quoteCacheMisses prometheus.Counter
	fallbackQuotes   prometheus.Counter
	resets           prometheus.Counter
	taskFailures     *prometheus.CounterVec
	taskDrops        prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

// New builds a registry with all game instruments plus the standard Go
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stonkstreet_trades_total",
				Help: "Trade attempts by side and outcome",
			},
			[]string{"side", "result"},
		),
		quoteCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonkstreet_quote_cache_hits_total",
			Help: "Quote lookups served from the TTL cache",
		}),
		quoteCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonkstreet_quote_cache_misses_total",
			Help: "Quote lookups that went to the upstream provider",
		}),
		fallbackQuotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonkstreet_fallback_quotes_total",
			Help: "Synthetic quotes served because the upstream feed failed",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonkstreet_daily_resets_total",
			Help: "Lazy daily portfolio resets applied",
		}),
		taskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stonkstreet_task_failures_total",
				Help: "Background tasks that exhausted their retries",
			},
			[]string{"task"},
		),
		taskDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonkstreet_task_drops_total",
			Help: "Background tasks rejected because the queue was full",
		}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stonkstreet_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.trades,
		m.quoteCacheHits,
		m.quoteCacheMisses,
		m.fallbackQuotes,
		m.resets,
		m.taskFailures,
		m.taskDrops,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TradeExecuted(side, result string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side, result).Inc()
}

func (m *Metrics) QuoteCacheHit() {
	if m == nil {
		return
	}
	m.quoteCacheHits.Inc()
}

func (m *Metrics) QuoteCacheMiss() {
	if m == nil {
		return
	}
	m.quoteCacheMisses.Inc()
}

func (m *Metrics) FallbackQuote() {
	if m == nil {
		return
	}
	m.fallbackQuotes.Inc()
}

func (m *Metrics) ResetApplied() {
	if m == nil {
		return
	}
	m.resets.Inc()
}

func (m *Metrics) TaskFailed(task string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task).Inc()
}

func (m *Metrics) TaskDropped() {
	if m == nil {
		return
	}
	m.taskDrops.Inc()
}

func (m *Metrics) ObserveRequest(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}
