package resilience

import (
	"context"
	"errors"

	"paygate/pkg/biller"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrTimeout is returned when a biller call exceeds its timeout.
	ErrTimeout = errors.New("resilience: biller call timeout")

	// ErrPanic wraps a recovered panic from a biller call.
	ErrPanic = errors.New("resilience: biller call panicked")

	// ErrNilResponse is returned when a call reports success without a response.
	ErrNilResponse = errors.New("resilience: biller call returned no response")
)

// IsCircuitOpen checks if an error is a circuit open error.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// ClassifyError returns the error type label used in logs and metrics.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsCircuitOpen(err):
		return "circuit_open"
	case IsTimeout(err):
		return "timeout"
	case errors.Is(err, ErrPanic):
		return "panic"
	case errors.Is(err, biller.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrNilResponse):
		return "nil_response"
	default:
		return "transport"
	}
}
