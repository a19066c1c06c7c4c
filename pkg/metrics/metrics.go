package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting gateway metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory for tests).
type MetricsCollector interface {
	// Biller calls, labelled by "biller.operation" circuit name
	RecordBillerCall(circuit string, result string, duration time.Duration)
	RecordFallback(circuit string, errorType string)

	// Circuit breaker
	RecordCircuitState(circuit string, state CircuitState)

	// 3DS orchestration
	RecordThreeDSRetry(biller string, withThreeDS bool)

	// Transactions reaching a final status
	RecordTransaction(biller string, kind string, status string)

	// Repository
	RecordRepositoryOp(backend string, operation string, success bool, duration time.Duration)

	// Async sink
	RecordQueueDepth(sink string, depth int)
	RecordEventDropped(sink string)
	RecordSinkWrite(sink string, success bool, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the biller has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is a no-op implementation of MetricsCollector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordBillerCall(circuit string, result string, duration time.Duration) {}
func (NoOpCollector) RecordFallback(circuit string, errorType string)                        {}
func (NoOpCollector) RecordCircuitState(circuit string, state CircuitState)                  {}
func (NoOpCollector) RecordThreeDSRetry(biller string, withThreeDS bool)                     {}
func (NoOpCollector) RecordTransaction(biller string, kind string, status string)            {}
func (NoOpCollector) RecordQueueDepth(sink string, depth int)                                {}
func (NoOpCollector) RecordEventDropped(sink string)                                         {}
func (NoOpCollector) RecordSinkWrite(sink string, success bool, duration time.Duration)      {}

func (NoOpCollector) RecordRepositoryOp(backend string, operation string, success bool, duration time.Duration) {
}
