// Package metrics exposes controller resolution and dispatch statistics in
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/roomgate/internal/controller"
)

const namespace = "roomgate"

// RegistryStats is the part of the controller registry the gauges read.
type RegistryStats interface {
	Count() int
	CachedCount() int
}

// Metrics owns a private Prometheus registry and the gateway's collectors.
// It implements controller.Observer.
type Metrics struct {
	registry *prometheus.Registry

	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	dispatches         *prometheus.CounterVec
	dispatchDuration   *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry. stats may be nil.
func New(stats RegistryStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "resolutions_total",
				Help:      "Controller address resolutions by outcome.",
			},
			[]string{"outcome"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "resolver",
				Name:      "resolution_duration_seconds",
				Help:      "Controller address resolution duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatcher",
				Name:      "dispatches_total",
				Help:      "Commands dispatched to controllers by kind and outcome.",
			},
			[]string{"command", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatcher",
				Name:      "dispatch_duration_seconds",
				Help:      "Command dispatch duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.resolutions, m.resolutionDuration,
		m.dispatches, m.dispatchDuration,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if stats != nil {
		m.TrackRegistry(stats)
	}

	return m
}

// TrackRegistry registers gauges reading the number of known and resolved
// controllers from stats. Call it at most once.
func (m *Metrics) TrackRegistry(stats RegistryStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "controllers",
			Help:      "Controllers known to the registry.",
		}, func() float64 { return float64(stats.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "controllers_resolved",
			Help:      "Controllers with a cached address.",
		}, func() float64 { return float64(stats.CachedCount()) }),
	)
}

// ObserveResolution implements controller.Observer.
func (m *Metrics) ObserveResolution(ev controller.ResolutionEvent) {
	outcome := string(ev.Outcome)
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolutionDuration.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
}

// ObserveDispatch implements controller.Observer.
func (m *Metrics) ObserveDispatch(ev controller.DispatchEvent) {
	outcome := string(ev.Outcome)
	m.dispatches.WithLabelValues(ev.Command, outcome).Inc()
	m.dispatchDuration.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
}

// RecordHTTPRequest counts one served API request. route should be the
// route pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ controller.Observer = (*Metrics)(nil)
