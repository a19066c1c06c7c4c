package transaction

import (
	"fmt"

	"paygate/pkg/settings"

	"github.com/google/uuid"
)

// RebillOperation is the action applied to an existing subscription.
type RebillOperation string

const (
	RebillUpdate  RebillOperation = "update"
	RebillSuspend RebillOperation = "suspend"
	RebillCancel  RebillOperation = "cancel"
)

func (o RebillOperation) valid() bool {
	switch o {
	case RebillUpdate, RebillSuspend, RebillCancel:
		return true
	}
	return false
}

// RebillUpdateParams are the inputs of a rebill update.
type RebillUpdateParams struct {
	ID                    uuid.UUID
	PreviousTransactionID uuid.UUID
	BillerName            string
	// Settings may be nil for billers that keep the schedule themselves.
	Settings  settings.BillerSettings
	Operation RebillOperation
	Rebill    *Rebill
	// Payment is set when the subscription moves to another card.
	Payment PaymentInformation
	// Charge is an optional immediate charge taken with the update.
	Charge *ChargeInformation
}

// RebillUpdateTransaction changes, suspends or cancels the rebill schedule
// started by a previous charge.
type RebillUpdateTransaction struct {
	Transaction

	previousTransactionID uuid.UUID
	operation             RebillOperation
	rebill                *Rebill
	payment               PaymentInformation
	charge                *ChargeInformation
}

var _ Aggregate = (*RebillUpdateTransaction)(nil)

// NewRebillUpdateTransaction creates a pending rebill update.
func NewRebillUpdateTransaction(p RebillUpdateParams) (*RebillUpdateTransaction, error) {
	if p.PreviousTransactionID == uuid.Nil {
		return nil, fmt.Errorf("%w: previous transaction id is required", ErrInvalidTransaction)
	}
	if err := checkBiller(p.BillerName, p.Settings); err != nil {
		return nil, err
	}
	op := p.Operation
	if op == "" {
		op = RebillUpdate
	}
	if !op.valid() {
		return nil, fmt.Errorf("%w: unknown rebill operation %q", ErrInvalidTransaction, op)
	}
	if op == RebillUpdate && p.Rebill == nil && p.Charge == nil {
		return nil, fmt.Errorf("%w: update needs a rebill schedule or a charge", ErrInvalidChargeInformation)
	}
	if err := validateRebill(p.Rebill); err != nil {
		return nil, err
	}
	if p.Charge != nil {
		if err := validateCharge(*p.Charge); err != nil {
			return nil, err
		}
	}
	var payment PaymentInformation
	if p.Payment != nil {
		if err := validatePayment(p.Payment); err != nil {
			return nil, err
		}
		payment = normalizePayment(p.Payment)
	}

	return &RebillUpdateTransaction{
		Transaction:           newTransaction(p.ID, KindRebillUpdate, p.BillerName, p.Settings),
		previousTransactionID: p.PreviousTransactionID,
		operation:             op,
		rebill:                p.Rebill,
		payment:               payment,
		charge:                p.Charge,
	}, nil
}

func (r *RebillUpdateTransaction) PreviousTransactionID() uuid.UUID { return r.previousTransactionID }
func (r *RebillUpdateTransaction) Operation() RebillOperation       { return r.operation }
func (r *RebillUpdateTransaction) Rebill() *Rebill                  { return r.rebill }

// PaymentInformation returns the replacement payment, or nil when the
// subscription keeps its card.
func (r *RebillUpdateTransaction) PaymentInformation() PaymentInformation { return r.payment }

// ChargeInformation returns the immediate charge taken with the update.
func (r *RebillUpdateTransaction) ChargeInformation() *ChargeInformation { return r.charge }

// IsPaymentTemplate reports an update that moves to a stored card.
func (r *RebillUpdateTransaction) IsPaymentTemplate() bool {
	_, ok := r.payment.(ExistingCreditCard)
	return ok
}
