package binding

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/rowbench/pkg/codec"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds Prometheus metrics for binding operations.
// A nil *Metrics records nothing.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	codecErrorsTotal  *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
}

// NewMetrics creates binding metrics and registers them with reg.
// Several DBs may share one Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowbench_binding_operations_total",
				Help: "Total number of binding operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowbench_binding_operation_duration_seconds",
				Help:    "Binding operation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"operation"},
		),
		codecErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowbench_codec_errors_total",
				Help: "Total number of row encode/decode failures",
			},
			[]string{"kind"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowbench_binding_retries_total",
				Help: "Total number of retried procedure calls",
			},
			[]string{"procedure"},
		),
	}
}

func (m *Metrics) observe(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := statusSuccess
	if err != nil {
		status = statusError
		var cerr *codec.Error
		if errors.As(err, &cerr) {
			m.codecErrorsTotal.WithLabelValues(cerr.Kind.String()).Inc()
		}
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) retried(procedure string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(procedure).Inc()
}
