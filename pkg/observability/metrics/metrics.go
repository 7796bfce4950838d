// Package metrics exposes handwrite events as Prometheus metrics.
//
// A [Collector] implements the render, cache and HTTP hook interfaces of the
// observability package and is itself a prometheus.Collector:
//
//	c := metrics.NewCollector()
//	observability.SetRenderHooks(c)
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(c)
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/handwrite/pkg/observability"
)

const metricsNamespace = "handwrite"

// Collector is a prometheus.Collector that collects metrics about rendering,
// caching and the HTTP server.
type Collector struct {
	rendersInFlight prometheus.Gauge
	renderDuration  *prometheus.HistogramVec
	renderPages     prometheus.Histogram
	renderErrors    *prometheus.CounterVec
	encodeBytes     *prometheus.CounterVec
	encodeDuration  *prometheus.HistogramVec

	cacheOps *prometheus.CounterVec

	requestsInFlight prometheus.Gauge
	requestDuration  *prometheus.HistogramVec
	requestErrors    *prometheus.CounterVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		rendersInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "renders_in_flight",
				Help:      "The number of renders currently running.",
			},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "render_duration_seconds",
				Help:      "The time taken by the handwriting engine.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			}, []string{"font"},
		),
		renderPages: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "render_pages",
				Help:      "The number of pages produced per render.",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),
		renderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "render_errors_total",
				Help:      "The number of failed renders.",
			}, []string{"font"},
		),
		encodeBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "encoded_bytes_total",
				Help:      "The number of bytes produced by page encoders.",
			}, []string{"format"},
		),
		encodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "encode_duration_seconds",
				Help:      "The time taken to encode a set of pages.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"format"},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_operations_total",
				Help:      "The number of cache lookups and writes.",
			}, []string{"key_type", "result"},
		),
		requestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_in_flight",
				Help:      "The number of HTTP requests being served.",
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "The time taken to serve HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route", "code"},
		),
		requestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_errors_total",
				Help:      "The number of HTTP requests that failed with a server error.",
			}, []string{"method", "route"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.rendersInFlight.Describe(ch)
	c.renderDuration.Describe(ch)
	c.renderPages.Describe(ch)
	c.renderErrors.Describe(ch)
	c.encodeBytes.Describe(ch)
	c.encodeDuration.Describe(ch)
	c.cacheOps.Describe(ch)
	c.requestsInFlight.Describe(ch)
	c.requestDuration.Describe(ch)
	c.requestErrors.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.rendersInFlight.Collect(ch)
	c.renderDuration.Collect(ch)
	c.renderPages.Collect(ch)
	c.renderErrors.Collect(ch)
	c.encodeBytes.Collect(ch)
	c.encodeDuration.Collect(ch)
	c.cacheOps.Collect(ch)
	c.requestsInFlight.Collect(ch)
	c.requestDuration.Collect(ch)
	c.requestErrors.Collect(ch)
}

// OnRenderStart implements observability.RenderHooks.
func (c *Collector) OnRenderStart(context.Context, string, int) {
	c.rendersInFlight.Inc()
}

// OnRenderComplete implements observability.RenderHooks.
func (c *Collector) OnRenderComplete(_ context.Context, font string, pages int, d time.Duration, err error) {
	c.rendersInFlight.Dec()
	if err != nil {
		c.renderErrors.WithLabelValues(font).Inc()
		return
	}
	c.renderDuration.WithLabelValues(font).Observe(d.Seconds())
	c.renderPages.Observe(float64(pages))
}

// OnEncode implements observability.RenderHooks.
func (c *Collector) OnEncode(_ context.Context, format string, size int, d time.Duration, err error) {
	if err != nil {
		return
	}
	c.encodeBytes.WithLabelValues(format).Add(float64(size))
	c.encodeDuration.WithLabelValues(format).Observe(d.Seconds())
}

// OnCacheHit implements observability.CacheHooks.
func (c *Collector) OnCacheHit(_ context.Context, keyType string) {
	c.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

// OnCacheMiss implements observability.CacheHooks.
func (c *Collector) OnCacheMiss(_ context.Context, keyType string) {
	c.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

// OnCacheSet implements observability.CacheHooks.
func (c *Collector) OnCacheSet(_ context.Context, keyType string, _ int) {
	c.cacheOps.WithLabelValues(keyType, "set").Inc()
}

// OnRequest implements observability.HTTPHooks.
func (c *Collector) OnRequest(context.Context, string, string) {
	c.requestsInFlight.Inc()
}

// OnResponse implements observability.HTTPHooks.
func (c *Collector) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	c.requestsInFlight.Dec()
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// OnError implements observability.HTTPHooks.
func (c *Collector) OnError(_ context.Context, method, route string, _ error) {
	c.requestErrors.WithLabelValues(method, route).Inc()
}

var (
	_ prometheus.Collector      = (*Collector)(nil)
	_ observability.RenderHooks = (*Collector)(nil)
	_ observability.CacheHooks  = (*Collector)(nil)
	_ observability.HTTPHooks   = (*Collector)(nil)
)
