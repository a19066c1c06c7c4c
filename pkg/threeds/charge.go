package threeds

import (
	"context"
	"fmt"
	"strconv"

	"paygate/pkg/biller"
	"paygate/pkg/observability"
	"paygate/pkg/transaction"

	"go.uber.org/zap"
)

// ChargeService wraps a plain charge with the 3DS retry rules.
type ChargeService struct {
	charger Charger
	opts    Options
}

// NewChargeService builds a ChargeService around charger.
func NewChargeService(charger Charger, opts Options) *ChargeService {
	return &ChargeService{charger: charger, opts: opts.withDefaults()}
}

// Charge calls the biller once and, when the response asks for it, retries
// exactly once with 3DS switched off or on. The exchange of the first call is
// appended to the ledger before the retry; the returned response is left for
// the caller to record.
//
// Errors are domain invariant violations only (a terminal transaction or a
// conflicting 3DS version). A terminal transaction is rejected before any
// biller call. Biller failures are aborted responses.
func (s *ChargeService) Charge(ctx context.Context, tx *transaction.ChargeTransaction) (biller.Response, error) {
	if !tx.IsPending() {
		return nil, &transaction.StateError{From: tx.Status(), Action: "charge"}
	}

	first := s.charger.Charge(ctx, tx)

	cls, ok := first.(biller.ThreeDSClassifier)
	if !ok {
		return first, nil
	}

	switch {
	case cls.ShouldRetryWithoutThreeD():
		return s.retry(ctx, tx, cls, false)
	case cls.ShouldRetryWithThreeD() && s.allowThreeDRetry(tx, cls):
		return s.retry(ctx, tx, cls, true)
	default:
		return first, nil
	}
}

// allowThreeDRetry applies the payment-template exemption for SCA soft
// declines.
func (s *ChargeService) allowThreeDRetry(tx *transaction.ChargeTransaction, cls biller.ThreeDSClassifier) bool {
	if cls.IsSCARequired() && tx.IsPaymentTemplate() && !s.opts.RetrySCAForPaymentTemplate {
		s.opts.Logger.Info("sca retry suppressed for payment template",
			zap.String("transaction_id", tx.ID().String()),
			zap.Bool("sec_rev", tx.IsSecRev()),
		)
		return false
	}
	return true
}

func (s *ChargeService) retry(ctx context.Context, tx *transaction.ChargeTransaction, first biller.ThreeDSClassifier, withThreeDS bool) (biller.Response, error) {
	if err := tx.AddResponseInteractions(first); err != nil {
		return nil, fmt.Errorf("threeds: record first attempt: %w", err)
	}
	if err := tx.SetWith3D(withThreeDS); err != nil {
		return nil, fmt.Errorf("threeds: set with3D: %w", err)
	}
	if withThreeDS {
		if v, ok := first.ThreeDSVersion(); ok {
			if err := tx.SetThreedsVersion(v); err != nil {
				return nil, fmt.Errorf("threeds: set version: %w", err)
			}
		}
	}

	s.opts.Metrics.RecordThreeDSRetry(tx.BillerName(), withThreeDS)
	s.opts.Logger.Info("retrying charge",
		zap.String("transaction_id", tx.ID().String()),
		zap.String("biller", tx.BillerName()),
		zap.String("reason", first.Reason()),
		zap.Bool("with_3ds", withThreeDS),
	)
	emit(ctx, s.opts, observability.NewEvent(
		observability.EventThreeDSRetry,
		tx.ID().String(),
		tx.BillerName(),
		map[string]string{
			"with3d":  strconv.FormatBool(withThreeDS),
			"reason":  first.Reason(),
			"version": versionAttr(tx),
		},
	))

	return s.charger.Charge(ctx, tx), nil
}
