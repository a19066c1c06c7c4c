package adapter

import (
	"context"

	"paygate/pkg/biller"
	"paygate/pkg/biller/rocketgate"
	"paygate/pkg/resilience"
	"paygate/pkg/threeds"
	"paygate/pkg/transaction"
)

// RocketgateClient is the Rocketgate transport. It covers every operation.
type RocketgateClient interface {
	NewCardCharger
	ExistingCardCharger
	RebillUpdater
	RebillSuspender
	RebillCanceller
	Lookup3DS2(ctx context.Context, tx *transaction.ChargeTransaction, req threeds.LookupRequest) (string, error)
	Complete3DS(ctx context.Context, tx *transaction.ChargeTransaction, req CompleteRequest) (string, error)
	SimplifiedComplete3DS(ctx context.Context, tx *transaction.ChargeTransaction, req CompleteRequest) (string, error)
	UploadCard(ctx context.Context, tx *transaction.ChargeTransaction) (string, error)
}

// Rocketgate adapts a RocketgateClient.
type Rocketgate struct {
	base
	client RocketgateClient
}

var (
	_ Adapter         = (*Rocketgate)(nil)
	_ threeds.Charger = (*Rocketgate)(nil)
	_ threeds.Looker  = (*Rocketgate)(nil)
)

// NewRocketgate creates the Rocketgate adapter.
func NewRocketgate(client RocketgateClient, registry *resilience.Registry) *Rocketgate {
	return &Rocketgate{
		base: base{
			name:      biller.Rocketgate,
			registry:  registry,
			normalize: rocketgate.Normalizer,
			fallback:  func(err error) biller.Response { return rocketgate.NewAbortedResponse(err) },
		},
		client: client,
	}
}

// Charge charges a new card or a payment template.
func (a *Rocketgate) Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	op := chargeOperation(tx)
	return a.run(ctx, op, func(ctx context.Context) (string, error) {
		if op == OpChargeExistingCard {
			return a.client.ChargeExistingCard(ctx, tx)
		}
		return a.client.ChargeNewCard(ctx, tx)
	})
}

// UpdateRebill updates, suspends or cancels a subscription.
func (a *Rocketgate) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	op := rebillOperation(tx)
	return a.run(ctx, op, func(ctx context.Context) (string, error) {
		switch op {
		case OpSuspendRebill:
			return a.client.SuspendRebill(ctx, tx)
		case OpCancelRebill:
			return a.client.CancelRebill(ctx, tx)
		default:
			return a.client.UpdateRebill(ctx, tx)
		}
	}), nil
}

// Lookup runs the 3DS2 device-fingerprint lookup.
func (a *Rocketgate) Lookup(ctx context.Context, tx *transaction.ChargeTransaction, req threeds.LookupRequest) biller.Response {
	return a.run(ctx, OpLookupThreeDS2, func(ctx context.Context) (string, error) {
		return a.client.Lookup3DS2(ctx, tx, req)
	})
}

// CompleteThreeDS finishes a charge left pending by a 3DS challenge. The
// gateway GUID of the pending charge is taken from the ledger unless req
// carries one.
func (a *Rocketgate) CompleteThreeDS(ctx context.Context, tx *transaction.ChargeTransaction, req CompleteRequest) biller.Response {
	if req.Reference == "" {
		req.Reference, _ = tx.FindInResponses(rocketgate.ExtractGUID)
	}
	if req.Simplified {
		return a.run(ctx, OpSimplifiedCompleteThreeDS, func(ctx context.Context) (string, error) {
			return a.client.SimplifiedComplete3DS(ctx, tx, req)
		})
	}
	return a.run(ctx, OpCompleteThreeDS, func(ctx context.Context) (string, error) {
		return a.client.Complete3DS(ctx, tx, req)
	})
}

// UploadCard stores the card at the gateway without charging it.
func (a *Rocketgate) UploadCard(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	return a.run(ctx, OpCardUpload, func(ctx context.Context) (string, error) {
		return a.client.UploadCard(ctx, tx)
	})
}
