// Package metrics holds the Prometheus collectors for the feed server. All
// methods are safe on a nil *Collector so components can run without metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	PagesServed     *prometheus.CounterVec
	RejectedCursors prometheus.Counter
	LikeMutations   *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	Subscribers     prometheus.Gauge
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewCollector registers every metric on a private registry, so tests can
// create as many collectors as they like.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PagesServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_served_total",
			Help:      "Feed and comment pages served",
		}, []string{"kind"}),
		RejectedCursors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_rejected_total",
			Help:      "Cursors that failed to decode and were served as a first page",
		}),
		LikeMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "like_mutations_total",
			Help:      "Like and unlike requests by outcome",
		}, []string{"kind", "action", "result"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_cache_hits_total",
			Help:      "Like count cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_cache_misses_total",
			Help:      "Like count cache misses",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Open realtime scope subscriptions",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_published_total",
			Help:      "Change events published to the broker",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_dropped_total",
			Help:      "Change events dropped for slow or malformed subscribers",
		}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.PagesServed,
		c.RejectedCursors,
		c.LikeMutations,
		c.CacheHits,
		c.CacheMisses,
		c.Subscribers,
		c.EventsPublished,
		c.EventsDropped,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) PageServed(kind string, cursorRejected bool) {
	if c == nil {
		return
	}
	c.PagesServed.WithLabelValues(kind).Inc()
	if cursorRejected {
		c.RejectedCursors.Inc()
	}
}

func (c *Collector) LikeMutation(kind, action, result string) {
	if c == nil {
		return
	}
	c.LikeMutations.WithLabelValues(kind, action, result).Inc()
}

func (c *Collector) CacheLookup(hits, misses int) {
	if c == nil {
		return
	}
	c.CacheHits.Add(float64(hits))
	c.CacheMisses.Add(float64(misses))
}

func (c *Collector) SubscriberAdded() {
	if c != nil {
		c.Subscribers.Inc()
	}
}

func (c *Collector) SubscriberRemoved() {
	if c != nil {
		c.Subscribers.Dec()
	}
}

func (c *Collector) EventPublished() {
	if c != nil {
		c.EventsPublished.Inc()
	}
}

func (c *Collector) EventDropped() {
	if c != nil {
		c.EventsDropped.Inc()
	}
}

// Middleware records request counts and latency by route pattern.
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if c == nil {
			return ctx.Next()
		}
		start := time.Now()
		err := ctx.Next()

		route := ctx.Route().Path
		status := ctx.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		c.HTTPRequests.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(ctx.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
}
