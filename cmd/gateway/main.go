package main

import (
	"context"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"paygate/pkg/adapter"
	"paygate/pkg/api"
	"paygate/pkg/config"
	"paygate/pkg/events"
	"paygate/pkg/logging"
	"paygate/pkg/metrics"
	promMetrics "paygate/pkg/metrics/prometheus"
	"paygate/pkg/observability"
	"paygate/pkg/processing"
	"paygate/pkg/redisclient"
	"paygate/pkg/repository"
	memrepo "paygate/pkg/repository/memory"
	"paygate/pkg/repository/postgres"
	redisrepo "paygate/pkg/repository/redis"
	"paygate/pkg/resilience"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

func main() {
	bootLogger, err := logging.NewLoggerFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		bootLogger.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logger.Info("starting payment gateway",
		zap.String("repository", cfg.Repository.Driver),
		zap.String("events", cfg.Events.Publisher),
		zap.String("bi_writer", cfg.Observability.Writer),
	)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := promMetrics.NewPrometheusCollector(cfg.Metrics.Namespace)
	if err := metricsCollector.Register(promRegistry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}
	requestMetrics := api.NewRequestMetrics(cfg.Metrics.Namespace)
	if err := requestMetrics.Register(promRegistry); err != nil {
		logger.Fatal("Failed to register request metrics", zap.Error(err))
	}

	breakers := resilience.NewRegistry(
		cfg.Breakers.Default,
		append(cfg.Breakers.RegistryOptions(), resilience.WithMetrics(metricsCollector))...,
	)

	redis := lazyRedis{config: cfg.Redis}
	defer redis.Close()

	// Closed in reverse order, before the Redis client.
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}
	}()

	repo, repoCloser, err := openRepository(cfg.Repository, &redis, metricsCollector)
	if err != nil {
		logger.Fatal("Failed to open repository", zap.Error(err))
	}
	if repoCloser != nil {
		closers = append(closers, repoCloser)
	}

	writer, err := biWriter(cfg.Observability, &redis, logger)
	if err != nil {
		logger.Fatal("Failed to create BI writer", zap.Error(err))
	}
	sink := observability.NewAsyncSinkWithMetrics(writer, cfg.Observability.AsyncConfig, metricsCollector)
	closers = append(closers, sink)

	publisher, err := eventPublisher(cfg.Events, &redis)
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}

	// Biller transports live outside this process; every biller answers
	// with its aborted fallback until a client is plugged in here.
	adapters := adapter.NewSet(breakers, adapter.Clients{})

	processor := processing.New(processing.Config{
		Adapters:                   adapters,
		Repository:                 repo,
		Publisher:                  publisher,
		Sink:                       sink,
		Metrics:                    metricsCollector,
		Logger:                     logger,
		RetrySCAForPaymentTemplate: cfg.Features.RetrySCAForPaymentTemplate,
	})

	server := api.NewServer(api.Dependencies{
		Transactions:   repo,
		Circuits:       breakers,
		Completer:      processor,
		Gatherer:       promRegistry,
		RequestMetrics: requestMetrics,
		Logger:         logger,
	}, cfg.Server)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", zap.Error(err))
	}
	if err := sink.Flush(5 * time.Second); err != nil {
		logger.Warn("BI sink not drained", zap.Error(err))
	}
	logger.Info("gateway stopped")
}

// openRepository builds the configured backend with its decorators. The
// closer is nil when the backend owns no connection.
func openRepository(cfg config.RepositoryConfig, redis *lazyRedis, mc metrics.MetricsCollector) (repository.Repository, io.Closer, error) {
	var (
		backend repository.Repository
		closer  io.Closer
	)

	switch cfg.Driver {
	case config.DriverRedis:
		client, err := redis.Client()
		if err != nil {
			return nil, nil, err
		}
		backend = redisrepo.New(client, cfg.Redis)
	case config.DriverPostgres:
		pg, err := postgres.Open(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = pg, pg
	default:
		backend = memrepo.New()
	}

	var repo repository.Repository = repository.NewInstrumented(backend, cfg.Driver, mc)
	if cfg.SingleFlight {
		repo = repository.NewSingleFlight(repo)
	}
	return repo, closer, nil
}

func biWriter(cfg config.ObservabilityConfig, redis *lazyRedis, logger *logging.Logger) (observability.Writer, error) {
	if cfg.Writer != config.WriterRedis {
		return observability.NewLogWriter(logger), nil
	}
	client, err := redis.Client()
	if err != nil {
		return nil, err
	}
	return observability.NewRedisStreamWriter(client, cfg.Stream, cfg.MaxLen), nil
}

func eventPublisher(cfg config.EventsConfig, redis *lazyRedis) (events.Publisher, error) {
	if cfg.Publisher != config.PublisherRedis {
		return events.NopPublisher{}, nil
	}
	client, err := redis.Client()
	if err != nil {
		return nil, err
	}
	return events.NewRedisPublisher(client, cfg.Channel), nil
}

// lazyRedis connects on first use so a memory-only setup needs no Redis.
type lazyRedis struct {
	config redisclient.Config
	client rueidis.Client
}

func (r *lazyRedis) Client() (rueidis.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	client, err := redisclient.New(r.config)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *lazyRedis) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
