package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paygate/pkg/resilience"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
	if cfg.Repository.Driver != DriverMemory {
		t.Errorf("Expected memory driver, got %s", cfg.Repository.Driver)
	}
	if cfg.Breakers.Default.Timeout != 30*time.Second {
		t.Errorf("Expected 30s call timeout, got %v", cfg.Breakers.Default.Timeout)
	}
}

func TestLoadFile_SampleConfig(t *testing.T) {
	cfg, err := LoadFile("../../configs/gateway.yaml")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Sample config is invalid: %v", err)
	}

	if cfg.Repository.Redis.TTL != 720*time.Hour {
		t.Errorf("Expected 720h ttl, got %v", cfg.Repository.Redis.TTL)
	}
	if cfg.Breakers.Default.CircuitBreakerConfig.Timeout != 30*time.Second {
		t.Errorf("Expected 30s sleep window, got %v", cfg.Breakers.Default.CircuitBreakerConfig.Timeout)
	}
	if len(cfg.Breakers.Overrides) != 2 {
		t.Fatalf("Expected 2 overrides, got %d", len(cfg.Breakers.Overrides))
	}
	lookup := cfg.Breakers.Overrides[0]
	if lookup.Biller != "rocketgate" || lookup.Operation != "lookup-3ds2" || lookup.Timeout != 10*time.Second {
		t.Errorf("Unexpected override: %+v", lookup)
	}
	legacy := cfg.Breakers.Overrides[1]
	if legacy.Operation != "" || legacy.CircuitBreakerConfig.ErrorThresholdPercent != 50 {
		t.Errorf("Unexpected override: %+v", legacy)
	}
	if cfg.Observability.MaxWaitTime != 10*time.Millisecond {
		t.Errorf("Expected 10ms max wait, got %v", cfg.Observability.MaxWaitTime)
	}
}

func TestLoadFile_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, "repository:\n  driver: redis\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Repository.Driver != DriverRedis {
		t.Errorf("Expected redis driver, got %s", cfg.Repository.Driver)
	}
	if cfg.Repository.Redis.KeyPrefix != "paygate:tx:" {
		t.Errorf("Expected default key prefix, got %q", cfg.Repository.Redis.KeyPrefix)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Expected default address, got %q", cfg.Server.Address)
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [")

	if _, err := LoadFile(path); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("Expected an error for a missing CONFIG_PATH file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "server:\n  address: \":9000\"\n"))
	t.Setenv("GATEWAY_ADDRESS", ":9100")
	t.Setenv("GATEWAY_REPOSITORY_DRIVER", "postgres")
	t.Setenv("GATEWAY_POSTGRES_HOST", "db.internal")
	t.Setenv("GATEWAY_RETRY_SCA_FOR_PAYMENT_TEMPLATE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Errorf("Expected env address, got %q", cfg.Server.Address)
	}
	if cfg.Repository.Driver != DriverPostgres || cfg.Repository.Postgres.Host != "db.internal" {
		t.Errorf("Unexpected repository config: %+v", cfg.Repository)
	}
	if !cfg.Features.RetrySCAForPaymentTemplate {
		t.Error("Expected SCA retry for payment templates to be enabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected debug level, got %q", cfg.Log.Level)
	}
}

func TestLoad_InvalidBoolEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, ""))
	t.Setenv("GATEWAY_RETRY_SCA_FOR_PAYMENT_TEMPLATE", "maybe")

	if _, err := Load(); err == nil {
		t.Error("Expected an error for a malformed boolean")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Repository.Driver = "mongo" }, "Driver"},
		{"unknown writer", func(c *Config) { c.Observability.Writer = "kafka" }, "Writer"},
		{"redis writer without stream", func(c *Config) {
			c.Observability.Writer = WriterRedis
			c.Observability.Stream = ""
		}, "Stream"},
		{"redis publisher without channel", func(c *Config) {
			c.Events.Publisher = PublisherRedis
			c.Events.Channel = ""
		}, "Channel"},
		{"override without biller", func(c *Config) {
			c.Breakers.Overrides = []BreakerOverride{{Operation: "charge-new-card"}}
		}, "Biller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBreakersConfig_RegistryOptions(t *testing.T) {
	b := BreakersConfig{
		Default: resilience.DefaultConfig(),
		Overrides: []BreakerOverride{
			{Biller: "rocketgate", Operation: "lookup-3ds2", Config: resilience.Config{Timeout: 3 * time.Second}},
		},
	}

	registry := resilience.NewRegistry(b.Default, b.RegistryOptions()...)
	lookup := registry.Command(resilience.Key{Biller: "rocketgate", Operation: "lookup-3ds2"})
	charge := registry.Command(resilience.Key{Biller: "rocketgate", Operation: "charge-new-card"})

	if lookup.Timeout() != 3*time.Second {
		t.Errorf("Expected overridden timeout, got %v", lookup.Timeout())
	}
	if charge.Timeout() != 30*time.Second {
		t.Errorf("Expected default timeout, got %v", charge.Timeout())
	}
}
