// Package config loads the gateway configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"paygate/pkg/api"
	"paygate/pkg/logging"
	"paygate/pkg/observability"
	"paygate/pkg/redisclient"
	"paygate/pkg/repository/postgres"
	redisrepo "paygate/pkg/repository/redis"
	"paygate/pkg/resilience"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is not set.
const DefaultPath = "./configs/gateway.yaml"

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"

	WriterLog   = "log"
	WriterRedis = "redis"

	PublisherNone  = "none"
	PublisherRedis = "redis"
)

type Config struct {
	Server        api.ServerConfig    `yaml:"server"`
	Log           logging.Config      `yaml:"log"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Redis         redisclient.Config  `yaml:"redis"`
	Repository    RepositoryConfig    `yaml:"repository"`
	Breakers      BreakersConfig      `yaml:"breakers"`
	Features      FeaturesConfig      `yaml:"features"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" validate:"required"`
}

// RepositoryConfig selects where transactions are stored.
type RepositoryConfig struct {
	Driver   string           `yaml:"driver" validate:"oneof=memory redis postgres"`
	Redis    redisrepo.Config `yaml:"redis"`
	Postgres postgres.Config  `yaml:"postgres"`
	// SingleFlight collapses concurrent reads of one transaction.
	SingleFlight bool `yaml:"single_flight"`
}

// BreakersConfig holds the defaults of every biller operation and the
// overrides of some.
type BreakersConfig struct {
	Default   resilience.Config `yaml:"default"`
	Overrides []BreakerOverride `yaml:"overrides" validate:"dive"`
}

// BreakerOverride merges its non-zero fields over the defaults. An empty
// Operation applies to every operation of the biller.
type BreakerOverride struct {
	Biller            string `yaml:"biller" validate:"required"`
	Operation         string `yaml:"operation"`
	resilience.Config `yaml:",inline"`
}

// RegistryOptions turns the overrides into registry options.
func (b BreakersConfig) RegistryOptions() []resilience.RegistryOption {
	opts := make([]resilience.RegistryOption, 0, len(b.Overrides))
	for _, o := range b.Overrides {
		opts = append(opts, resilience.WithOverride(resilience.Key{Biller: o.Biller, Operation: o.Operation}, o.Config))
	}
	return opts
}

type FeaturesConfig struct {
	RetrySCAForPaymentTemplate bool `yaml:"retry_sca_for_payment_template"`
}

// EventsConfig selects the domain event publisher.
type EventsConfig struct {
	Publisher string `yaml:"publisher" validate:"oneof=none redis"`
	Channel   string `yaml:"channel" validate:"required_if=Publisher redis"`
}

// ObservabilityConfig configures the BI event sink.
type ObservabilityConfig struct {
	observability.AsyncConfig `yaml:",inline"`

	Writer string `yaml:"writer" validate:"oneof=log redis"`
	// Stream and MaxLen apply to the redis writer.
	Stream string `yaml:"stream" validate:"required_if=Writer redis"`
	MaxLen int64  `yaml:"max_len"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Server:     api.DefaultServerConfig(),
		Log:        logging.DefaultConfig(),
		Metrics:    MetricsConfig{Namespace: "paygate"},
		Redis:      redisclient.DefaultConfig(),
		Repository: RepositoryConfig{Driver: DriverMemory, Redis: redisrepo.DefaultConfig(), Postgres: postgres.DefaultConfig()},
		Breakers:   BreakersConfig{Default: resilience.DefaultConfig()},
		Events:     EventsConfig{Publisher: PublisherNone, Channel: "paygate.transactions"},
		Observability: ObservabilityConfig{
			AsyncConfig: observability.AsyncConfig{
				QueueSize:    1000,
				Workers:      2,
				MaxWaitTime:  10 * time.Millisecond,
				WriteTimeout: 2 * time.Second,
			},
			Writer: WriterLog,
			Stream: "paygate:bi",
			MaxLen: 100000,
		},
	}
}

// Load reads CONFIG_PATH, or DefaultPath when unset, then applies the
// environment. A missing file at DefaultPath yields the defaults; a missing
// file named by CONFIG_PATH is an error.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		d := Default()
		cfg = &d
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes the file at path over the defaults. It neither applies
// the environment nor validates.
func LoadFile(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides the file with LOG_* and GATEWAY_* variables.
func (c *Config) ApplyEnv() error {
	c.Log = logging.ApplyEnv(c.Log)

	if v := os.Getenv("GATEWAY_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("GATEWAY_REPOSITORY_DRIVER"); v != "" {
		c.Repository.Driver = v
	}
	if v := os.Getenv("GATEWAY_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("GATEWAY_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("GATEWAY_POSTGRES_HOST"); v != "" {
		c.Repository.Postgres.Host = v
	}
	if v := os.Getenv("GATEWAY_POSTGRES_PASSWORD"); v != "" {
		c.Repository.Postgres.Password = v
	}
	if v := os.Getenv("GATEWAY_EVENTS_PUBLISHER"); v != "" {
		c.Events.Publisher = v
	}
	if v := os.Getenv("GATEWAY_OBSERVABILITY_WRITER"); v != "" {
		c.Observability.Writer = v
	}
	if v := os.Getenv("GATEWAY_RETRY_SCA_FOR_PAYMENT_TEMPLATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: GATEWAY_RETRY_SCA_FOR_PAYMENT_TEMPLATE: %w", err)
		}
		c.Features.RetrySCAForPaymentTemplate = b
	}
	return nil
}

var validate = validator.New()

// Validate checks the driver, writer and publisher choices.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
