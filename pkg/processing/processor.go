// Package processing runs a transaction end to end: store it, call the
// biller through the 3DS orchestrator, fold the outcome into the transaction,
// store it again and publish what happened.
package processing

import (
	"context"
	"errors"
	"fmt"

	"paygate/pkg/adapter"
	"paygate/pkg/biller"
	"paygate/pkg/events"
	"paygate/pkg/logging"
	"paygate/pkg/metrics"
	"paygate/pkg/observability"
	"paygate/pkg/repository"
	"paygate/pkg/threeds"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotAwaitingThreeDS is returned when completing 3DS on a transaction
	// that is not a pending 3DS charge.
	ErrNotAwaitingThreeDS = errors.New("processing: transaction is not awaiting 3ds completion")

	// ErrWrongRebillOperation is returned when CancelRebill gets an update or
	// a suspension.
	ErrWrongRebillOperation = errors.New("processing: wrong rebill operation")
)

// Adapters resolves the biller adapters. *adapter.Set implements it.
type Adapters interface {
	Get(billerName string) (adapter.Adapter, error)
	Looker(billerName string) (threeds.Looker, bool)
}

// ThreeDSCompleter is implemented by adapters that can finish a challenged
// charge.
type ThreeDSCompleter interface {
	CompleteThreeDS(ctx context.Context, tx *transaction.ChargeTransaction, req adapter.CompleteRequest) biller.Response
}

// Config wires a Processor. Only Adapters and Repository are required.
type Config struct {
	Adapters   Adapters
	Repository repository.Repository
	Publisher  events.Publisher
	Builder    *events.Builder
	Sink       observability.Sink
	Metrics    metrics.MetricsCollector
	Logger     *logging.Logger

	RetrySCAForPaymentTemplate bool
}

type Processor struct {
	adapters  Adapters
	repo      repository.Repository
	publisher events.Publisher
	builder   *events.Builder
	sink      observability.Sink
	metrics   metrics.MetricsCollector
	logger    *logging.Logger
	threeds   threeds.Options
}

func New(cfg Config) *Processor {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.Builder == nil {
		cfg.Builder = events.NewBuilder(nil)
	}
	if cfg.Sink == nil {
		cfg.Sink = observability.NopSink{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOpCollector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Global()
	}

	return &Processor{
		adapters:  cfg.Adapters,
		repo:      cfg.Repository,
		publisher: cfg.Publisher,
		builder:   cfg.Builder,
		sink:      cfg.Sink,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.Named("processing"),
		threeds: threeds.Options{
			RetrySCAForPaymentTemplate: cfg.RetrySCAForPaymentTemplate,
			Sink:                       cfg.Sink,
			Metrics:                    cfg.Metrics,
			Logger:                     cfg.Logger,
		},
	}
}

// Charge processes a new charge, retrying with or without 3DS when the
// biller asks for it.
func (p *Processor) Charge(ctx context.Context, tx *transaction.ChargeTransaction) (biller.Response, error) {
	a, err := p.adapters.Get(tx.BillerName())
	if err != nil {
		return nil, err
	}
	if err := p.begin(ctx, tx); err != nil {
		return nil, err
	}

	resp, err := threeds.NewChargeService(a, p.threeds).Charge(ctx, tx)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, tx, resp)
}

// LookupThreeDS processes a charge that starts with a 3DS2 lookup.
func (p *Processor) LookupThreeDS(ctx context.Context, tx *transaction.ChargeTransaction, req threeds.LookupRequest) (biller.Response, error) {
	a, err := p.adapters.Get(tx.BillerName())
	if err != nil {
		return nil, err
	}
	looker, ok := p.adapters.Looker(tx.BillerName())
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", adapter.ErrUnsupportedOperation, tx.BillerName(), adapter.OpLookupThreeDS2)
	}
	if err := p.begin(ctx, tx); err != nil {
		return nil, err
	}

	resp, err := threeds.NewLookupService(looker, a, p.threeds).Lookup(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, tx, resp)
}

// CompleteThreeDS finishes a stored charge left pending by a 3DS challenge.
func (p *Processor) CompleteThreeDS(ctx context.Context, id uuid.UUID, req adapter.CompleteRequest) (biller.Response, error) {
	found, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tx, ok := found.(*transaction.ChargeTransaction)
	if !ok || !tx.IsPending() || !tx.With3D() {
		return nil, fmt.Errorf("%w: %s", ErrNotAwaitingThreeDS, id)
	}

	a, err := p.adapters.Get(tx.BillerName())
	if err != nil {
		return nil, err
	}
	completer, ok := a.(ThreeDSCompleter)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", adapter.ErrUnsupportedOperation, tx.BillerName(), adapter.OpCompleteThreeDS)
	}

	return p.finish(ctx, tx, completer.CompleteThreeDS(ctx, tx, req))
}

// UpdateRebill applies a rebill update, suspension or cancellation. An
// operation the biller does not offer aborts the transaction and returns
// adapter.ErrUnsupportedOperation.
func (p *Processor) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	a, err := p.adapters.Get(tx.BillerName())
	if err != nil {
		return nil, err
	}
	if err := p.begin(ctx, tx); err != nil {
		return nil, err
	}

	resp, err := a.UpdateRebill(ctx, tx)
	if err != nil {
		p.fail(ctx, tx, err)
		return nil, err
	}
	return p.finish(ctx, tx, resp)
}

// CancelRebill is UpdateRebill restricted to cancellations.
func (p *Processor) CancelRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	if tx.Operation() != transaction.RebillCancel {
		return nil, fmt.Errorf("%w: %s", ErrWrongRebillOperation, tx.Operation())
	}
	return p.UpdateRebill(ctx, tx)
}

// begin stores a new transaction and announces it.
func (p *Processor) begin(ctx context.Context, tx transaction.Aggregate) error {
	if err := p.repo.Add(ctx, tx); err != nil {
		return fmt.Errorf("processing: store %s: %w", tx.ID(), err)
	}

	created, err := p.builder.Created(tx)
	if err != nil {
		p.logger.Error("created event not built", zap.String("transaction_id", tx.ID().String()), zap.Error(err))
		return nil
	}
	p.publish(ctx, created)
	return nil
}

// finish records the final response, stores the transaction and publishes
// the terminal event.
func (p *Processor) finish(ctx context.Context, tx transaction.Aggregate, resp biller.Response) (biller.Response, error) {
	log := p.logger.ForTransaction(tx.ID().String(), tx.BillerName())

	if err := tx.Record(resp); err != nil {
		return nil, fmt.Errorf("processing: record %s: %w", tx.ID(), err)
	}
	if err := p.repo.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("processing: store %s: %w", tx.ID(), err)
	}

	p.metrics.RecordTransaction(tx.BillerName(), string(tx.Kind()), tx.Status().String())
	log.Info("transaction processed",
		zap.String("status", tx.Status().String()),
		zap.String("code", resp.Code()),
		zap.String("reason", resp.Reason()),
	)

	p.announce(ctx, tx, resp)
	return resp, nil
}

// fail aborts a transaction whose operation could not be attempted.
func (p *Processor) fail(ctx context.Context, tx transaction.Aggregate, cause error) {
	log := p.logger.ForTransaction(tx.ID().String(), tx.BillerName())

	if err := tx.Abort(); err != nil {
		log.Error("abort failed", zap.Error(err))
		return
	}
	if err := p.repo.Update(ctx, tx); err != nil {
		log.Error("aborted transaction not stored", zap.Error(err))
		return
	}
	p.metrics.RecordTransaction(tx.BillerName(), string(tx.Kind()), tx.Status().String())
	log.Warn("transaction aborted", zap.Error(cause))

	p.announce(ctx, tx, nil)
}

func (p *Processor) announce(ctx context.Context, tx transaction.Aggregate, resp biller.Response) {
	e, ok, err := p.builder.Build(tx, resp)
	if err != nil {
		p.logger.Error("event not built", zap.String("transaction_id", tx.ID().String()), zap.Error(err))
		return
	}
	if ok {
		p.publish(ctx, e)
	}

	if tx.Status() == transaction.StatusDeclined && resp != nil {
		attrs := map[string]string{"code": resp.Code(), "reason": resp.Reason()}
		if err := p.sink.Write(ctx, observability.NewEvent(observability.EventTransactionDeclined, tx.ID().String(), tx.BillerName(), attrs)); err != nil {
			p.logger.Warn("bi event not written", zap.String("transaction_id", tx.ID().String()), zap.Error(err))
		}
	}
}

// publish never fails the transaction; errors are logged.
func (p *Processor) publish(ctx context.Context, e events.Event) {
	if err := p.publisher.Publish(ctx, e); err != nil {
		p.logger.Error("event not published",
			zap.String("type", string(e.EventType())),
			zap.String("transaction_id", e.AggregateID()),
			zap.Error(err),
		)
	}
}
