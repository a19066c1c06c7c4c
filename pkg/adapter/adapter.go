// Package adapter puts every outbound biller operation behind its own circuit
// breaker. An adapter never returns a transport error: a failed, slow or
// malformed call comes back as the biller's aborted response.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/resilience"
	"paygate/pkg/transaction"
)

// Operation names one biller endpoint. Together with the biller name it keys
// a circuit.
type Operation string

const (
	OpChargeNewCard             Operation = "charge-new-card"
	OpChargeExistingCard        Operation = "charge-existing-card"
	OpUpdateRebill              Operation = "update-rebill"
	OpSuspendRebill             Operation = "suspend-rebill"
	OpCancelRebill              Operation = "cancel-rebill"
	OpLookupThreeDS2            Operation = "lookup-3ds2"
	OpCompleteThreeDS           Operation = "complete-3ds"
	OpSimplifiedCompleteThreeDS Operation = "simplified-complete-3ds"
	OpCardUpload                Operation = "card-upload"
)

// Operations lists every operation in a stable order.
var Operations = []Operation{
	OpChargeNewCard,
	OpChargeExistingCard,
	OpUpdateRebill,
	OpSuspendRebill,
	OpCancelRebill,
	OpLookupThreeDS2,
	OpCompleteThreeDS,
	OpSimplifiedCompleteThreeDS,
	OpCardUpload,
}

var (
	// ErrUnsupportedOperation is returned when a biller has no endpoint for
	// the requested operation. No call is made.
	ErrUnsupportedOperation = errors.New("adapter: operation not supported by biller")

	// ErrUnavailable is the transport error of UnavailableClient.
	ErrUnavailable = errors.New("adapter: biller client unavailable")
)

// Adapter is the surface shared by every biller adapter.
type Adapter interface {
	Biller() string
	Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response
	UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (biller.Response, error)
}

// CompleteRequest carries the cardholder authentication result posted back
// after a 3DS challenge.
type CompleteRequest struct {
	// PaRes is the 3DS1 authentication response.
	PaRes string `json:"pares,omitempty"`
	// CRes is the 3DS2 challenge result.
	CRes string `json:"cres,omitempty"`
	// Simplified completes through the simplified 3DS endpoint.
	Simplified bool `json:"simplified,omitempty"`
	// Reference is the biller's id of the pending charge. When empty the
	// adapter reads it back from the transaction's ledger.
	Reference string `json:"-"`
}

// Transport contracts. Each method sends one request and returns the raw
// payload as produced by the biller's network client.
type (
	NewCardCharger interface {
		ChargeNewCard(ctx context.Context, tx *transaction.ChargeTransaction) (string, error)
	}
	ExistingCardCharger interface {
		ChargeExistingCard(ctx context.Context, tx *transaction.ChargeTransaction) (string, error)
	}
	RebillUpdater interface {
		UpdateRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (string, error)
	}
	RebillSuspender interface {
		SuspendRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (string, error)
	}
	RebillCanceller interface {
		CancelRebill(ctx context.Context, tx *transaction.RebillUpdateTransaction) (string, error)
	}
)

// base holds what every adapter shares: the circuits and the biller's
// normalizer and fallback.
type base struct {
	name      string
	registry  *resilience.Registry
	normalize biller.Normalizer
	fallback  resilience.Fallback
}

// run sends through the circuit for op. The request date is taken before
// send and the response date after it. A payload that fails to normalize
// still reaches the fallback, so the aborted response records it.
func (b *base) run(ctx context.Context, op Operation, send func(ctx context.Context) (string, error)) biller.Response {
	cmd := b.registry.Command(resilience.Key{Biller: b.name, Operation: string(op)})

	return cmd.Run(ctx, func(ctx context.Context) (biller.Response, error) {
		requestDate := time.Now()
		payload, err := send(ctx)
		if err != nil {
			return nil, err
		}
		responseDate := time.Now()
		resp, err := b.normalize(payload, requestDate, responseDate)
		if err != nil {
			return nil, &biller.MalformedPayloadError{
				Payload:      payload,
				RequestDate:  requestDate,
				ResponseDate: responseDate,
				Err:          err,
			}
		}
		return resp, nil
	}, b.fallback)
}

func (b *base) Biller() string { return b.name }

func (b *base) unsupported(op Operation) error {
	return fmt.Errorf("%w: %s %s", ErrUnsupportedOperation, b.name, op)
}

// chargeOperation picks the charge endpoint from the payment information.
func chargeOperation(tx *transaction.ChargeTransaction) Operation {
	if tx.IsPaymentTemplate() {
		return OpChargeExistingCard
	}
	return OpChargeNewCard
}

// rebillOperation maps a rebill update onto its endpoint.
func rebillOperation(tx *transaction.RebillUpdateTransaction) Operation {
	switch tx.Operation() {
	case transaction.RebillSuspend:
		return OpSuspendRebill
	case transaction.RebillCancel:
		return OpCancelRebill
	default:
		return OpUpdateRebill
	}
}
