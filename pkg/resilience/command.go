// Package resilience isolates every outbound biller call behind its own
// circuit breaker and timeout. Callers always get a biller.Response back:
// failures, timeouts, panics and open circuits are turned into the biller's
// aborted fallback.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/logging"
	"paygate/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Call performs one biller operation and returns its normalized response.
type Call func(ctx context.Context) (biller.Response, error)

// Fallback builds the aborted response for a failed call. err is nil when
// the circuit was open and the call never ran.
type Fallback func(err error) biller.Response

// Command runs calls for one biller+operation pair through a dedicated
// circuit breaker.
type Command struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

// NewCommand creates a command named after its circuit.
func NewCommand(name string, config Config) *Command {
	return NewCommandWithMetrics(name, config, metrics.NoOpCollector{})
}

// NewCommandWithMetrics creates a command with a custom metrics collector.
func NewCommandWithMetrics(name string, config Config, metricsCollector metrics.MetricsCollector) *Command {
	logger := logging.Global().Named("resilience").With(logging.Circuit(name))

	c := &Command{
		name:    name,
		timeout: config.Timeout,
		metrics: metricsCollector,
		logger:  logger,
	}

	logger.Debug("circuit initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", config.CircuitBreakerConfig.MaxRequests),
		zap.Duration("circuit_interval", config.CircuitBreakerConfig.Interval),
		zap.Duration("circuit_timeout", config.CircuitBreakerConfig.Timeout),
		zap.Float64("error_threshold_percent", config.CircuitBreakerConfig.ErrorThresholdPercent),
		zap.Uint32("request_volume_threshold", config.CircuitBreakerConfig.RequestVolumeThreshold),
	)

	cbConfig := config.CircuitBreakerConfig
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cbConfig.shouldTrip(Counts{
				Requests:             counts.Requests,
				TotalSuccesses:       counts.TotalSuccesses,
				TotalFailures:        counts.TotalFailures,
				ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
				ConsecutiveFailures:  counts.ConsecutiveFailures,
			})
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.metrics.RecordCircuitState(name, circuitState(to))
		},
	}

	c.cb = gobreaker.NewCircuitBreaker(settings)

	return c
}

// Name returns the circuit name.
func (c *Command) Name() string {
	return c.name
}

// Timeout returns the per-call timeout.
func (c *Command) Timeout() time.Duration {
	return c.timeout
}

// State returns the current circuit state.
func (c *Command) State() metrics.CircuitState {
	return circuitState(c.cb.State())
}

// Counts returns the counters of the current interval.
func (c *Command) Counts() Counts {
	counts := c.cb.Counts()
	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

// Run executes call through the circuit breaker. A successful call's response
// is returned unchanged; any failure returns fallback's response. Run never
// returns an error and never panics on behalf of call.
//
// The call runs with its own timeout and is detached from the caller's
// cancellation: once dispatched it completes or times out.
func (c *Command) Run(ctx context.Context, call Call, fallback Fallback) biller.Response {
	start := time.Now()

	callCtx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.timeout)
		defer cancel()
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.invoke(callCtx, call)
	})

	duration := time.Since(start)

	if err != nil {
		var fallbackErr error
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			err = ErrCircuitOpen
			c.logger.Warn("circuit breaker open - request rejected")
		case IsTimeout(err):
			err = ErrTimeout
			fallbackErr = err
			c.logger.Warn("biller call timeout",
				zap.Duration("timeout", c.timeout),
				zap.Duration("elapsed", duration),
			)
		default:
			fallbackErr = err
			c.logger.Error("biller call failed",
				zap.String("error_type", ClassifyError(err)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		}

		c.metrics.RecordFallback(c.name, ClassifyError(err))
		resp := fallback(fallbackErr)
		c.metrics.RecordBillerCall(c.name, resp.Result().String(), duration)
		return resp
	}

	resp := result.(biller.Response)
	c.metrics.RecordBillerCall(c.name, resp.Result().String(), duration)
	return resp
}

type outcome struct {
	resp biller.Response
	err  error
}

// invoke runs call on its own goroutine so a call that ignores its context
// still cannot hold the caller past the timeout.
func (c *Command) invoke(ctx context.Context, call Call) (biller.Response, error) {
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		resp, err := call(ctx)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil && o.resp == nil {
			return nil, ErrNilResponse
		}
		if o.err != nil {
			return nil, o.err
		}
		return o.resp, nil
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
