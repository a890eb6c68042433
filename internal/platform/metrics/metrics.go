// Package metrics exposes Prometheus instrumentation for profile sync
// operations and HTTP traffic.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics bundles the collectors registered for one process.
type Metrics struct {
	registry *prometheus.Registry

	syncTotal      *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	uploadProgress prometheus.Gauge
	storeRevision  prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge
}

// New creates a Metrics instance backed by a fresh registry that also
// carries the Go runtime and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_sync_operations_total",
			Help: "Profile sync operations by operation and result",
		}, []string{"operation", "result"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profile_sync_operation_duration_seconds",
			Help:    "Duration of profile sync operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5},
		}, []string{"operation"}),
		uploadProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_upload_progress_percent",
			Help: "Progress of the most recent profile picture upload",
		}),
		storeRevision: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profile_store_revision",
			Help: "Current revision of the profile store",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "HTTP requests currently being served",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncTotal,
		m.syncDuration,
		m.uploadProgress,
		m.storeRevision,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInflight,
	} {
		if err := registerCollector(m.registry, c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records one sync operation outcome and its duration.
func (m *Metrics) ObserveOperation(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(operation, result).Inc()
	m.syncDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetUploadProgress records the latest upload progress tick.
func (m *Metrics) SetUploadProgress(pct int) {
	if m == nil {
		return
	}
	m.uploadProgress.Set(float64(pct))
}

// SetStoreRevision records the store revision after a mutation.
func (m *Metrics) SetStoreRevision(rev uint64) {
	if m == nil {
		return
	}
	m.storeRevision.Set(float64(rev))
}

// Middleware instruments HTTP requests with counters, latency and inflight gauges.
// The route label is the chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInflight.Inc()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			m.httpInflight.Dec()
			method := strings.ToUpper(r.Method)
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(ww, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// registerCollector registers c, treating duplicates as success.
func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}
