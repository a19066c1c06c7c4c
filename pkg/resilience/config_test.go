package resilience

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", config.Timeout)
	}

	cb := config.CircuitBreakerConfig
	if cb.ErrorThresholdPercent != 15 || cb.RequestVolumeThreshold != 20 {
		t.Errorf("Unexpected thresholds: %v%% / %d", cb.ErrorThresholdPercent, cb.RequestVolumeThreshold)
	}

	// Below the volume threshold nothing trips
	if cb.shouldTrip(Counts{Requests: 19, TotalFailures: 19}) {
		t.Error("Should not trip below the request volume")
	}

	if cb.shouldTrip(Counts{Requests: 20, TotalFailures: 2}) {
		t.Error("Should not trip at 10% errors")
	}

	if !cb.shouldTrip(Counts{Requests: 20, TotalFailures: 3}) {
		t.Error("Should trip at 15% errors")
	}
}

func TestCircuitBreakerConfig_ReadyToTripOverrides(t *testing.T) {
	cb := DefaultConfig().CircuitBreakerConfig
	cb.ReadyToTrip = func(counts Counts) bool {
		return counts.ConsecutiveFailures >= 2
	}

	if !cb.shouldTrip(Counts{Requests: 2, ConsecutiveFailures: 2}) {
		t.Error("Custom ReadyToTrip must win over thresholds")
	}
}

func TestConfig_WithTimeout(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithTimeout(2 * time.Second)

	if newConfig.Timeout != 2*time.Second {
		t.Errorf("Expected timeout 2s, got %v", newConfig.Timeout)
	}

	// Verify original is unchanged
	if config.Timeout != 30*time.Second {
		t.Errorf("Original config changed: got %v", config.Timeout)
	}
}

func TestConfig_WithCircuitBreakerTimeout(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithCircuitBreakerTimeout(20 * time.Second)

	if newConfig.CircuitBreakerConfig.Timeout != 20*time.Second {
		t.Errorf("Expected CB timeout 20s, got %v", newConfig.CircuitBreakerConfig.Timeout)
	}
	if config.CircuitBreakerConfig.Timeout != 30*time.Second {
		t.Errorf("Original config changed: got %v", config.CircuitBreakerConfig.Timeout)
	}
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(Config{
		Timeout: 5 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			ErrorThresholdPercent: 50,
		},
	})

	if merged.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", merged.Timeout)
	}
	if merged.CircuitBreakerConfig.ErrorThresholdPercent != 50 {
		t.Errorf("Expected 50%%, got %v", merged.CircuitBreakerConfig.ErrorThresholdPercent)
	}
	if merged.CircuitBreakerConfig.RequestVolumeThreshold != 20 {
		t.Errorf("Zero fields must keep the base value, got %d", merged.CircuitBreakerConfig.RequestVolumeThreshold)
	}
}
