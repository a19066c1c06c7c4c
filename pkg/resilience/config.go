package resilience

import (
	"time"
)

// Config configures the circuit and timeout of one biller operation.
type Config struct {
	// Timeout bounds a single biller call, including normalization.
	Timeout time.Duration `yaml:"timeout"`

	// CircuitBreakerConfig configures the circuit breaker behavior
	CircuitBreakerConfig CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the CircuitBreaker is half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state after which the
	// counts are cleared. If Interval is 0, counts are never cleared.
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state after which the state becomes half-open.
	Timeout time.Duration `yaml:"sleep_window"`

	// ErrorThresholdPercent opens the circuit once this share of requests
	// in the current interval failed.
	ErrorThresholdPercent float64 `yaml:"error_threshold_percent"`

	// RequestVolumeThreshold is the minimum number of requests in the
	// interval before the error rate is considered.
	RequestVolumeThreshold uint32 `yaml:"request_volume_threshold"`

	// ReadyToTrip replaces the threshold rule when set.
	ReadyToTrip func(counts Counts) bool `yaml:"-"`
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig returns the defaults applied to every biller operation.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests:            5,
			Interval:               60 * time.Second,
			Timeout:                30 * time.Second,
			ErrorThresholdPercent:  15,
			RequestVolumeThreshold: 20,
		},
	}
}

// shouldTrip applies ReadyToTrip or the volume and error-rate thresholds.
func (c CircuitBreakerConfig) shouldTrip(counts Counts) bool {
	if c.ReadyToTrip != nil {
		return c.ReadyToTrip(counts)
	}
	if counts.Requests == 0 || counts.Requests < c.RequestVolumeThreshold {
		return false
	}
	failureRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
	return failureRate >= c.ErrorThresholdPercent
}

// WithTimeout returns a copy of the config with the specified call timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithCircuitBreakerTimeout returns a copy of the config with the specified open-state duration.
func (c Config) WithCircuitBreakerTimeout(timeout time.Duration) Config {
	c.CircuitBreakerConfig.Timeout = timeout
	return c
}

// Merge overlays the non-zero fields of o onto c.
func (c Config) Merge(o Config) Config {
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	cb := o.CircuitBreakerConfig
	if cb.MaxRequests > 0 {
		c.CircuitBreakerConfig.MaxRequests = cb.MaxRequests
	}
	if cb.Interval > 0 {
		c.CircuitBreakerConfig.Interval = cb.Interval
	}
	if cb.Timeout > 0 {
		c.CircuitBreakerConfig.Timeout = cb.Timeout
	}
	if cb.ErrorThresholdPercent > 0 {
		c.CircuitBreakerConfig.ErrorThresholdPercent = cb.ErrorThresholdPercent
	}
	if cb.RequestVolumeThreshold > 0 {
		c.CircuitBreakerConfig.RequestVolumeThreshold = cb.RequestVolumeThreshold
	}
	if cb.ReadyToTrip != nil {
		c.CircuitBreakerConfig.ReadyToTrip = cb.ReadyToTrip
	}
	return c
}
