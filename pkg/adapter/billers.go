package adapter

import (
	"context"

	"paygate/pkg/biller"
	"paygate/pkg/biller/epoch"
	"paygate/pkg/biller/legacy"
	"paygate/pkg/biller/netbilling"
	"paygate/pkg/biller/pumapay"
	"paygate/pkg/biller/qysso"
	"paygate/pkg/resilience"
	"paygate/pkg/transaction"
)

// NetbillingClient is the Netbilling transport. Netbilling has no suspend
// endpoint.
type NetbillingClient interface {
	NewCardCharger
	ExistingCardCharger
	RebillUpdater
	RebillCanceller
}

// Netbilling adapts a NetbillingClient.
type Netbilling struct {
	base
	client NetbillingClient
}

func NewNetbilling(client NetbillingClient, registry *resilience.Registry) *Netbilling {
	return &Netbilling{
		base: base{
			name:      biller.Netbilling,
			registry:  registry,
			normalize: netbilling.Normalizer,
			fallback:  func(err error) biller.Response { return netbilling.NewAbortedResponse(err) },
		},
		client: client,
	}
}

func (a *Netbilling) Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	op := chargeOperation(tx)
	return a.run(ctx, op, func(ctx context.Context) (string, error) {
		if op == OpChargeExistingCard {
			return a.client.ChargeExistingCard(ctx, tx)
		}
		return a.client.ChargeNewCard(ctx, tx)
	})
}

func (a *Netbilling) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	switch op := rebillOperation(tx); op {
	case OpUpdateRebill:
		return a.run(ctx, op, func(ctx context.Context) (string, error) { return a.client.UpdateRebill(ctx, tx) }), nil
	case OpCancelRebill:
		return a.run(ctx, op, func(ctx context.Context) (string, error) { return a.client.CancelRebill(ctx, tx) }), nil
	default:
		return nil, a.unsupported(op)
	}
}

// EpochClient is the Epoch transport. Epoch charges through a hosted
// redirect and keeps subscriptions itself, so only cancel is exposed.
type EpochClient interface {
	NewCardCharger
	RebillCanceller
}

// Epoch adapts an EpochClient.
type Epoch struct {
	base
	client EpochClient
}

func NewEpoch(client EpochClient, registry *resilience.Registry) *Epoch {
	return &Epoch{
		base: base{
			name:      biller.Epoch,
			registry:  registry,
			normalize: epoch.Normalizer,
			fallback:  func(err error) biller.Response { return epoch.NewAbortedResponse(err) },
		},
		client: client,
	}
}

func (a *Epoch) Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	return a.chargeNewCardOnly(ctx, tx, a.client)
}

func (a *Epoch) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	return a.cancelOnly(ctx, tx, a.client)
}

// QyssoClient is the Qysso transport.
type QyssoClient interface {
	NewCardCharger
	RebillUpdater
	RebillCanceller
}

// Qysso adapts a QyssoClient.
type Qysso struct {
	base
	client QyssoClient
}

func NewQysso(client QyssoClient, registry *resilience.Registry) *Qysso {
	return &Qysso{
		base: base{
			name:      biller.Qysso,
			registry:  registry,
			normalize: qysso.Normalizer,
			fallback:  func(err error) biller.Response { return qysso.NewAbortedResponse(err) },
		},
		client: client,
	}
}

func (a *Qysso) Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	return a.chargeNewCardOnly(ctx, tx, a.client)
}

func (a *Qysso) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	switch op := rebillOperation(tx); op {
	case OpUpdateRebill:
		return a.run(ctx, op, func(ctx context.Context) (string, error) { return a.client.UpdateRebill(ctx, tx) }), nil
	case OpCancelRebill:
		return a.run(ctx, op, func(ctx context.Context) (string, error) { return a.client.CancelRebill(ctx, tx) }), nil
	default:
		return nil, a.unsupported(op)
	}
}

// PumapayClient is the Pumapay transport.
type PumapayClient interface {
	NewCardCharger
	RebillCanceller
}

// Pumapay adapts a PumapayClient. Pumapay charges are pull payments; the
// new-card endpoint issues the payment request.
type Pumapay struct {
	base
	client PumapayClient
}

func NewPumapay(client PumapayClient, registry *resilience.Registry) *Pumapay {
	return &Pumapay{
		base: base{
			name:      biller.Pumapay,
			registry:  registry,
			normalize: pumapay.Normalizer,
			fallback:  func(err error) biller.Response { return pumapay.NewAbortedResponse(err) },
		},
		client: client,
	}
}

func (a *Pumapay) Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	return a.chargeNewCardOnly(ctx, tx, a.client)
}

func (a *Pumapay) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	return a.cancelOnly(ctx, tx, a.client)
}

// LegacyClient is the Legacy processor transport.
type LegacyClient interface {
	NewCardCharger
	RebillUpdater
	RebillCanceller
}

// Legacy adapts a LegacyClient.
type Legacy struct {
	base
	client LegacyClient
}

func NewLegacy(client LegacyClient, registry *resilience.Registry) *Legacy {
	return &Legacy{
		base: base{
			name:      biller.Legacy,
			registry:  registry,
			normalize: legacy.Normalizer,
			fallback:  func(err error) biller.Response { return legacy.NewAbortedResponse(err) },
		},
		client: client,
	}
}

func (a *Legacy) Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response {
	return a.chargeNewCardOnly(ctx, tx, a.client)
}

func (a *Legacy) UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error) {
	switch op := rebillOperation(tx); op {
	case OpUpdateRebill:
		return a.run(ctx, op, func(ctx context.Context) (string, error) { return a.client.UpdateRebill(ctx, tx) }), nil
	case OpCancelRebill:
		return a.run(ctx, op, func(ctx context.Context) (string, error) { return a.client.CancelRebill(ctx, tx) }), nil
	default:
		return nil, a.unsupported(op)
	}
}

// chargeNewCardOnly serves billers without a payment-template endpoint. A
// template charge gets the aborted response without any call being made.
func (b *base) chargeNewCardOnly(ctx context.Context, tx *transaction.ChargeTransaction, client NewCardCharger) biller.Response {
	if op := chargeOperation(tx); op != OpChargeNewCard {
		return b.fallback(b.unsupported(op))
	}
	return b.run(ctx, OpChargeNewCard, func(ctx context.Context) (string, error) {
		return client.ChargeNewCard(ctx, tx)
	})
}

func (b *base) cancelOnly(ctx context.Context, tx *transaction.RebillUpdateTransaction, client RebillCanceller) (biller.Response, error) {
	if op := rebillOperation(tx); op != OpCancelRebill {
		return nil, b.unsupported(op)
	}
	return b.run(ctx, OpCancelRebill, func(ctx context.Context) (string, error) {
		return client.CancelRebill(ctx, tx)
	}), nil
}

var (
	_ Adapter = (*Netbilling)(nil)
	_ Adapter = (*Epoch)(nil)
	_ Adapter = (*Qysso)(nil)
	_ Adapter = (*Pumapay)(nil)
	_ Adapter = (*Legacy)(nil)
)
