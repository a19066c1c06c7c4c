package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"paygate/pkg/logging"
	"paygate/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncSink hands events to a Writer through a bounded queue and a worker
// pool, so a slow or failing backend never blocks a biller round trip.
type AsyncSink struct {
	writer     Writer
	queue      chan Event
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     AsyncConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	name       string

	// Statistics (accessed atomically)
	dropped atomic.Int64
	total   atomic.Int64
	failed  atomic.Int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
	closeOnce     sync.Once
}

// AsyncConfig configures the async sink.
type AsyncConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int `yaml:"queue_size"`

	// Workers is the number of concurrent workers (default: 2)
	Workers int `yaml:"workers"`

	// MaxWaitTime is how long Write waits on a full queue before dropping.
	// Negative means drop immediately (default: 10ms)
	MaxWaitTime time.Duration `yaml:"max_wait_time"`

	// WriteTimeout bounds a single Writer call (default: 2s)
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Stats provides statistics about the async sink.
type Stats struct {
	QueueDepth int
	Dropped    int64
	Total      int64
	Failed     int64
}

// NewAsyncSink starts the worker pool. The sink must be closed with Close().
func NewAsyncSink(writer Writer, config AsyncConfig) *AsyncSink {
	return NewAsyncSinkWithMetrics(writer, config, metrics.NoOpCollector{})
}

// NewAsyncSinkWithMetrics starts the worker pool with a custom metrics collector.
func NewAsyncSinkWithMetrics(writer Writer, config AsyncConfig, metricsCollector metrics.MetricsCollector) *AsyncSink {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &AsyncSink{
		writer:        writer,
		queue:         make(chan Event, config.QueueSize),
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       metricsCollector,
		logger:        logging.Global().Named("observability").With(zap.String("sink", writer.Name())),
		name:          writer.Name(),
		metricsTicker: time.NewTicker(5 * time.Second),
		metricsStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	go s.reportMetrics()

	return s
}

// Write enqueues an event. On a full queue it waits up to MaxWaitTime and
// then drops the event with ErrQueueFull.
func (s *AsyncSink) Write(ctx context.Context, e Event) error {
	select {
	case <-s.ctx.Done():
		return ErrSinkClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if s.config.MaxWaitTime < 0 {
		select {
		case s.queue <- e:
			s.total.Add(1)
			return nil
		default:
			s.drop(e)
			return ErrQueueFull
		}
	}

	timer := time.NewTimer(s.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case s.queue <- e:
		s.total.Add(1)
		return nil
	case <-timer.C:
		s.drop(e)
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSinkClosed
	}
}

func (s *AsyncSink) drop(e Event) {
	s.dropped.Add(1)
	s.metrics.RecordEventDropped(s.name)
	s.logger.Warn("observability event dropped",
		zap.String("type", string(e.Type)),
		zap.String("transaction_id", e.TransactionID),
	)
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()

	for {
		select {
		case e := <-s.queue:
			s.deliver(e)
		case <-s.ctx.Done():
			// Drain what is left before exiting
			for {
				select {
				case e := <-s.queue:
					s.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := s.writer.Write(ctx, e)
	s.metrics.RecordSinkWrite(s.name, err == nil, time.Since(start))

	if err != nil {
		s.failed.Add(1)
		s.logger.Error("observability write failed",
			zap.String("type", string(e.Type)),
			zap.String("transaction_id", e.TransactionID),
			zap.Error(err),
		)
	}
}

// Flush waits until the queue is empty or the timeout elapses.
func (s *AsyncSink) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if len(s.queue) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops accepting events, drains the queue and waits for the workers.
func (s *AsyncSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.metricsStop)
		s.metricsTicker.Stop()
		s.cancelFunc()
		s.wg.Wait()
	})
	return nil
}

func (s *AsyncSink) reportMetrics() {
	for {
		select {
		case <-s.metricsTicker.C:
			s.metrics.RecordQueueDepth(s.name, len(s.queue))
		case <-s.metricsStop:
			return
		}
	}
}

// Stats returns current statistics.
func (s *AsyncSink) Stats() Stats {
	return Stats{
		QueueDepth: len(s.queue),
		Dropped:    s.dropped.Load(),
		Total:      s.total.Load(),
		Failed:     s.failed.Load(),
	}
}
