package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	procedureCallsTotal    *prometheus.CounterVec
	procedureCallDuration  *prometheus.HistogramVec
	partitionFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates all API metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowbench_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowbench_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rowbench_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		procedureCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowbench_procedure_calls_total",
				Help: "Total number of procedure calls by outcome status",
			},
			[]string{"procedure", "status"},
		),

		procedureCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowbench_procedure_call_duration_seconds",
				Help:    "Procedure execution time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure"},
		),

		partitionFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowbench_partition_failures_total",
				Help: "Total number of failed per-partition responses in all-partition calls",
			},
			[]string{"procedure"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordProcedureCall records a procedure call and its status
func (m *Metrics) RecordProcedureCall(procedure, status string, duration time.Duration) {
	m.procedureCallsTotal.WithLabelValues(procedure, status).Inc()
	m.procedureCallDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordPartitionFailures records failed partitions of an all-partition call
func (m *Metrics) RecordPartitionFailures(procedure string, failed int) {
	if failed > 0 {
		m.partitionFailuresTotal.WithLabelValues(procedure).Add(float64(failed))
	}
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
