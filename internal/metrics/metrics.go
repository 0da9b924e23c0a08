// Package metrics owns the process Prometheus registry: site HTTP traffic,
// content store reads, build identity and operational flags.
//
// Labels are bounded on purpose. Routes come from chi patterns and stores from
// the configured chain, never from request paths.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/sitestore/internal/version"
)

const namespace = "sitestore"

// rate limit rejection reasons
const (
	reasonDenied   = "denied"
	reasonCapacity = "capacity"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	http  httpMetrics
	store storeMetrics

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

type httpMetrics struct {
	inflight    prometheus.Gauge
	requests    *prometheus.CounterVec
	serverErrs  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	size        *prometheus.HistogramVec
	panics      prometheus.Counter
	rateLimited *prometheus.CounterVec
}

type storeMetrics struct {
	reads    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	info     *prometheus.GaugeVec
}

func newHTTPMetrics() httpMetrics {
	const sub = "http"
	return httpMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "inflight_requests",
			Help: "Site requests currently being served",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "requests_total",
			Help: "Site requests by method, route and status",
		}, []string{"method", "route", "status"}),
		serverErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "server_errors_total",
			Help: "Site responses with a 5xx status by method and route",
		}, []string{"method", "route"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub,
			Name:    "request_duration_seconds",
			Help:    "Site request latency by method and route",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub,
			Name:    "response_size_bytes",
			Help:    "Site response body size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "panics_total",
			Help: "Handler panics recovered by the http servers",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "rate_limited_total",
			Help: "Rate limiter events by reason (denied, capacity)",
		}, []string{"reason"}),
	}
}

func (h httpMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{h.inflight, h.requests, h.serverErrs, h.duration, h.size, h.panics, h.rateLimited}
}

func newStoreMetrics() storeMetrics {
	const sub = "store"
	return storeMetrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "reads_total",
			Help: "Store reads by store and result (hit, not_found, error)",
		}, []string{"store", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub,
			Name:    "read_duration_seconds",
			Help:    "Store read latency by store and result",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"store", "result"}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "info",
			Help: "Configured stores in fallback order, value is always 1",
		}, []string{"store", "kind", "position"}),
	}
}

func (s storeMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{s.reads, s.duration, s.info}
}

// New builds a private registry with the Go and process collectors plus the
// site and store metrics.
func New() *ServerMetrics {
	m := &ServerMetrics{
		reg:   prometheus.NewRegistry(),
		http:  newHTTPMetrics(),
		store: newStoreMetrics(),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build metadata, value is always 1",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profiling_active",
			Help:      "1 while continuous profiling is running",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.buildInfo,
		m.profilingActive,
	)
	m.reg.MustRegister(m.http.collectors()...)
	m.reg.MustRegister(m.store.collectors()...)

	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry in Prometheus or OpenMetrics format.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncPanic() { m.http.panics.Inc() }

func (m *ServerMetrics) IncRateLimitDenied() {
	m.http.rateLimited.WithLabelValues(reasonDenied).Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.http.rateLimited.WithLabelValues(reasonCapacity).Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.profilingActive.Set(v)
}

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildID,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   vi.Dirty(),
	}).Set(1)
}

// ObserveStoreRead records one store read. A sampled span in ctx is attached
// to the latency sample as an exemplar.
func (m *ServerMetrics) ObserveStoreRead(ctx context.Context, store, result string, seconds float64) {
	m.store.reads.WithLabelValues(store, result).Inc()
	observe(ctx, m.store.duration.WithLabelValues(store, result), seconds)
}

// SetStoreInfo records the store at position in the fallback chain, 0 is the primary.
func (m *ServerMetrics) SetStoreInfo(store, kind string, position int) {
	m.store.info.WithLabelValues(store, kind, strconv.Itoa(position)).Set(1)
}
