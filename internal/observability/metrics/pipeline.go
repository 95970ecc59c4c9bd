package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/usecase"
)

// PipelineMetrics covers city builds and queued jobs. It satisfies
// usecase.CollectObserver and usecase.RunObserver.
type PipelineMetrics struct {
	service  string
	registry *prometheus.Registry

	cityRunsTotal    *prometheus.CounterVec
	cityRunDuration  *prometheus.HistogramVec
	boundaryOutcomes *prometheus.CounterVec
	featuresWritten  *prometheus.CounterVec
	jobsInFlight     prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec
	breakerOpen      *prometheus.GaugeVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	cityRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "pipeline",
			Name:      "city_runs_total",
			Help:      "Total city builds by final status.",
		},
		[]string{"service", "status"},
	)
	cityRunDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cof",
			Subsystem: "pipeline",
			Name:      "city_run_duration_seconds",
			Help:      "City build duration in seconds by final status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"service", "status"},
	)
	boundaryOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "pipeline",
			Name:      "boundary_outcomes_total",
			Help:      "Per-boundary collection outcomes by feature kind.",
		},
		[]string{"service", "kind", "outcome"},
	)
	featuresWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "pipeline",
			Name:      "features_written_total",
			Help:      "Feature records persisted by kind.",
		},
		[]string{"service", "kind"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cof",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of city jobs being built.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cof",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between a city job being requested and its build starting.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cof",
			Subsystem: "dependency",
			Name:      "retries_total",
			Help:      "Retried calls to postgres and nats by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cof",
			Subsystem: "dependency",
			Name:      "breaker_open",
			Help:      "1 while the operation's circuit breaker is open, 0.5 half-open, 0 closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		cityRunsTotal,
		cityRunDuration,
		boundaryOutcomes,
		featuresWritten,
		jobsInFlight,
		queueLag,
		retriesTotal,
		breakerOpen,
	)

	return &PipelineMetrics{
		service:          service,
		registry:         registry,
		cityRunsTotal:    cityRunsTotal,
		cityRunDuration:  cityRunDuration,
		boundaryOutcomes: boundaryOutcomes,
		featuresWritten:  featuresWritten,
		jobsInFlight:     jobsInFlight,
		queueLag:         queueLag,
		retriesTotal:     retriesTotal,
		breakerOpen:      breakerOpen,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveBoundary(kind domain.FeatureKind, outcome usecase.BoundaryOutcome) {
	m.boundaryOutcomes.WithLabelValues(m.service, string(kind), string(outcome)).Inc()
}

func (m *PipelineMetrics) ObserveCityRun(status domain.RunStatus, duration time.Duration) {
	m.cityRunsTotal.WithLabelValues(m.service, string(status)).Inc()
	m.cityRunDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveFeatures(kind domain.FeatureKind, count int) {
	if count <= 0 {
		return
	}
	m.featuresWritten.WithLabelValues(m.service, string(kind)).Add(float64(count))
}

func (m *PipelineMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *PipelineMetrics) FinishJob() {
	m.jobsInFlight.Dec()
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *PipelineMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "open":
		value = 1
	case "half-open":
		value = 0.5
	}
	m.breakerOpen.WithLabelValues(m.service, operation).Set(value)
}
