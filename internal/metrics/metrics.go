// Package metrics holds the Prometheus metrics of leaplineage.
//
// Every Record method is safe on a nil *Registry, so components can run
// without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leaplineage"

// Expansion results.
const (
	ExpansionMerged = "merged"
	ExpansionLeaf   = "leaf"
	ExpansionStale  = "stale"
	ExpansionError  = "error"
)

// Registry holds all metrics for the application.
type Registry struct {
	registry *prometheus.Registry

	ProjectionsTotal     *prometheus.CounterVec
	ProjectionDuration   prometheus.Histogram
	ProjectedNodes       prometheus.Histogram
	LayoutsTotal         prometheus.Counter
	LayoutDuration       prometheus.Histogram
	ExpansionsTotal      *prometheus.CounterVec
	ExpansionDuration    prometheus.Histogram
	PersistFailuresTotal *prometheus.CounterVec
	SessionsActive       prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// NewRegistry creates a registry with all metrics initialized, plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	return &Registry{
		registry: reg,
		ProjectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projections_total",
			Help:      "Total number of graph projections by caller",
		}, []string{"source"}),
		ProjectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "projection_duration_seconds",
			Help:      "Duration of graph projections in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ProjectedNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "projected_nodes",
			Help:      "Number of nodes per projection",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		LayoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layouts_total",
			Help:      "Total number of layouts computed",
		}),
		LayoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Duration of layouts in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		ExpansionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expansions_total",
			Help:      "Total number of node expansions by direction and result",
		}, []string{"direction", "result"}),
		ExpansionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expansion_duration_seconds",
			Help:      "Duration of node expansions including the catalog fetch",
			Buckets:   prometheus.DefBuckets,
		}),
		PersistFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Lineage edits the catalog rejected, by operation",
		}, []string{"operation"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open explorer sessions",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Gatherer returns the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordProjection records one projection.
func (r *Registry) RecordProjection(source string, nodes int, d time.Duration) {
	if r == nil {
		return
	}
	r.ProjectionsTotal.WithLabelValues(source).Inc()
	r.ProjectionDuration.Observe(d.Seconds())
	r.ProjectedNodes.Observe(float64(nodes))
}

// RecordLayout records one layout run.
func (r *Registry) RecordLayout(d time.Duration) {
	if r == nil {
		return
	}
	r.LayoutsTotal.Inc()
	r.LayoutDuration.Observe(d.Seconds())
}

// RecordExpansion records the outcome of one expansion.
func (r *Registry) RecordExpansion(direction, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.ExpansionsTotal.WithLabelValues(direction, result).Inc()
	r.ExpansionDuration.Observe(d.Seconds())
}

// RecordPersistFailure counts a rejected lineage edit.
func (r *Registry) RecordPersistFailure(operation string) {
	if r == nil {
		return
	}
	r.PersistFailuresTotal.WithLabelValues(operation).Inc()
}

// SetSessions sets the number of open sessions.
func (r *Registry) SetSessions(n int) {
	if r == nil {
		return
	}
	r.SessionsActive.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
