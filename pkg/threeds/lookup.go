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

// Lookup outcomes reported on the 3ds_lookup event.
const (
	OutcomeThreeDSRequired    = "3ds_required"
	OutcomeThreeDSNotRequired = "3ds_not_required"
	OutcomeAborted            = "aborted"
)

// LookupService runs the 3DS2 device-fingerprint lookup that precedes a
// charge.
type LookupService struct {
	looker  Looker
	charger Charger
	opts    Options
}

// NewLookupService builds a LookupService. charger performs the plain charge
// when the lookup reports 3DS as rejected.
func NewLookupService(looker Looker, charger Charger, opts Options) *LookupService {
	return &LookupService{looker: looker, charger: charger, opts: opts.withDefaults()}
}

// Lookup performs the lookup and then either charges without 3DS (lookup
// rejected 3DS) or marks the transaction for 3DS and returns the lookup
// response, leaving the charge to a later completion step. An aborted lookup
// is returned untouched.
func (s *LookupService) Lookup(ctx context.Context, tx *transaction.ChargeTransaction, req LookupRequest) (biller.Response, error) {
	if !tx.IsPending() {
		return nil, &transaction.StateError{From: tx.Status(), Action: "lookup"}
	}

	resp := s.looker.Lookup(ctx, tx, req)
	cls, classified := resp.(biller.ThreeDSClassifier)

	var (
		final        biller.Response
		outcome      string
		frictionless bool
	)

	switch {
	case resp.Result() == biller.ResultAborted:
		final, outcome = resp, OutcomeAborted

	case classified && cls.ShouldRetryWithoutThreeD():
		if err := tx.AddResponseInteractions(resp); err != nil {
			return nil, fmt.Errorf("threeds: record lookup: %w", err)
		}
		if err := tx.SetWith3D(false); err != nil {
			return nil, fmt.Errorf("threeds: set with3D: %w", err)
		}
		s.opts.Logger.Info("3ds rejected on lookup, charging without 3ds",
			zap.String("transaction_id", tx.ID().String()),
			zap.String("biller", tx.BillerName()),
		)
		final, outcome = s.charger.Charge(ctx, tx), OutcomeThreeDSNotRequired

	default:
		if err := tx.SetWith3D(true); err != nil {
			return nil, fmt.Errorf("threeds: set with3D: %w", err)
		}
		if classified {
			if v, ok := cls.ThreeDSVersion(); ok {
				if err := tx.SetThreedsVersion(v); err != nil {
					return nil, fmt.Errorf("threeds: set version: %w", err)
				}
			}
			frictionless = cls.IsFrictionless()
		}
		final, outcome = resp, OutcomeThreeDSRequired
	}

	id := tx.ID().String()
	emit(ctx, s.opts, observability.NewEvent(
		observability.EventThreeDSLookup, id, tx.BillerName(),
		map[string]string{
			"outcome": outcome,
			"code":    final.Code(),
			"reason":  final.Reason(),
			"with3d":  strconv.FormatBool(tx.With3D()),
			"version": versionAttr(tx),
		},
	))
	emit(ctx, s.opts, observability.NewEvent(
		observability.EventThreeDSFrictionless, id, tx.BillerName(),
		map[string]string{"frictionless": strconv.FormatBool(frictionless)},
	))

	return final, nil
}
