package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	classifiedValuesTotal *prometheus.CounterVec
	enqueuedRunsTotal     *prometheus.CounterVec
	rateLimitedTotal      *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cof",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cof",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	classifiedValuesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "classify",
			Name:      "values_total",
			Help:      "Tag values classified through the API by taxonomy.",
		},
		[]string{"service", "taxonomy"},
	)
	enqueuedRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "queue",
			Name:      "enqueued_runs_total",
			Help:      "City runs requested through the API by result.",
		},
		[]string{"service", "result"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		classifiedValuesTotal,
		enqueuedRunsTotal,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		classifiedValuesTotal: classifiedValuesTotal,
		enqueuedRunsTotal:     enqueuedRunsTotal,
		rateLimitedTotal:      rateLimitedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds dataset, city and run identifiers out of the label.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/datasets/"):
		rest := strings.TrimPrefix(path, "/v1/datasets/")
		if i := strings.LastIndex(rest, "/"); i >= 0 {
			return "/v1/datasets/{name}" + rest[i:]
		}
		return "/v1/datasets/{name}"
	case strings.HasPrefix(path, "/v1/cities/"):
		rest := strings.TrimPrefix(path, "/v1/cities/")
		if i := strings.LastIndex(rest, "/"); i >= 0 {
			return "/v1/cities/{name}" + rest[i:]
		}
		return "/v1/cities/{name}"
	case strings.HasPrefix(path, "/v1/runs/"):
		return "/v1/runs/{run_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordClassified(service, taxonomy string, values int) {
	if values <= 0 {
		return
	}
	m.classifiedValuesTotal.WithLabelValues(service, taxonomy).Add(float64(values))
}

func (m *HTTPServerMetrics) RecordEnqueue(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.enqueuedRunsTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
