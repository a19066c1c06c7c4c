package prometheus

import (
	"strconv"
	"time"

	"paygate/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Biller calls
	billerCalls   *prometheus.CounterVec
	billerLatency *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Domain
	threeDSRetries *prometheus.CounterVec
	transactions   *prometheus.CounterVec

	// Repository
	repoOps     *prometheus.CounterVec
	repoLatency *prometheus.HistogramVec

	// Async sink
	queueDepth    *prometheus.GaugeVec
	droppedEvents *prometheus.CounterVec
	sinkWrites    *prometheus.CounterVec
	sinkLatency   *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		namespace: namespace,
		billerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "biller_calls_total",
				Help:      "Total number of biller calls per circuit and normalized result",
			},
			[]string{"circuit", "result"},
		),
		billerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "biller_call_duration_seconds",
				Help:      "Biller call latency including normalization",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
			},
			[]string{"circuit"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "biller_fallbacks_total",
				Help:      "Total number of aborted fallbacks per circuit and error type",
			},
			[]string{"circuit", "error_type"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens per circuit",
			},
			[]string{"circuit"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state per circuit (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit"},
		),
		threeDSRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "threeds_retries_total",
				Help:      "Total number of protocol retries per biller and direction",
			},
			[]string{"biller", "with_3ds"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of processed transactions per biller, kind and status",
			},
			[]string{"biller", "kind", "status"},
		),
		repoOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_operations_total",
				Help:      "Total number of repository operations",
			},
			[]string{"backend", "operation", "status"},
		),
		repoLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "repository_operation_duration_seconds",
				Help:      "Repository operation latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3s
			},
			[]string{"backend", "operation"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sink_queue_depth",
				Help:      "Current async sink queue depth",
			},
			[]string{"sink"},
		),
		droppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_dropped_events_total",
				Help:      "Total number of observability events dropped by the async sink",
			},
			[]string{"sink"},
		),
		sinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_writes_total",
				Help:      "Total number of observability events written",
			},
			[]string{"sink", "status"},
		),
		sinkLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_write_duration_seconds",
				Help:      "Observability writer latency",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"sink"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		pc.billerCalls,
		pc.billerLatency,
		pc.fallbacks,
		pc.circuitOpens,
		pc.circuitState,
		pc.threeDSRetries,
		pc.transactions,
		pc.repoOps,
		pc.repoLatency,
		pc.queueDepth,
		pc.droppedEvents,
		pc.sinkWrites,
		pc.sinkLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordBillerCall records one wrapped biller call.
func (pc *PrometheusCollector) RecordBillerCall(circuit string, result string, duration time.Duration) {
	pc.billerCalls.WithLabelValues(circuit, result).Inc()
	pc.billerLatency.WithLabelValues(circuit).Observe(duration.Seconds())
}

// RecordFallback records a call replaced by the aborted fallback.
func (pc *PrometheusCollector) RecordFallback(circuit string, errorType string) {
	pc.fallbacks.WithLabelValues(circuit, errorType).Inc()
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(circuit string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(circuit).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(circuit).Inc()
	}
}

// RecordThreeDSRetry records a protocol retry.
func (pc *PrometheusCollector) RecordThreeDSRetry(biller string, withThreeDS bool) {
	pc.threeDSRetries.WithLabelValues(biller, strconv.FormatBool(withThreeDS)).Inc()
}

// RecordTransaction records a processed transaction.
func (pc *PrometheusCollector) RecordTransaction(biller string, kind string, status string) {
	pc.transactions.WithLabelValues(biller, kind, status).Inc()
}

// RecordRepositoryOp records a repository operation.
func (pc *PrometheusCollector) RecordRepositoryOp(backend string, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.repoOps.WithLabelValues(backend, operation, status).Inc()
	pc.repoLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordQueueDepth records the current async sink queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(sink string, depth int) {
	pc.queueDepth.WithLabelValues(sink).Set(float64(depth))
}

// RecordEventDropped records a dropped observability event.
func (pc *PrometheusCollector) RecordEventDropped(sink string) {
	pc.droppedEvents.WithLabelValues(sink).Inc()
}

// RecordSinkWrite records an observability writer call.
func (pc *PrometheusCollector) RecordSinkWrite(sink string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.sinkWrites.WithLabelValues(sink, status).Inc()
	pc.sinkLatency.WithLabelValues(sink).Observe(duration.Seconds())
}
