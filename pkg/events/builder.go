package events

import (
	"fmt"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/biller/netbilling"
	"paygate/pkg/biller/rocketgate"
	"paygate/pkg/settings"
	"paygate/pkg/transaction"
)

type ledgerReader func(payload string) (string, bool)

// Readers that rebuild biller identifiers from stored response payloads,
// used when the final response does not carry them.
var (
	referenceReaders = map[string]ledgerReader{
		biller.Rocketgate: rocketgate.ExtractGUID,
		biller.Netbilling: netbilling.ExtractTransID,
	}
	cardHashReaders = map[string]ledgerReader{
		biller.Rocketgate: rocketgate.ExtractCardHash,
	}
)

func fromLedger(tx transaction.Aggregate, readers map[string]ledgerReader) string {
	read, ok := readers[tx.BillerName()]
	if !ok {
		return ""
	}
	v, _ := tx.FindInResponses(read)
	return v
}

// Builder turns transactions into events.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a Builder. A nil clock uses time.Now.
func NewBuilder(clock func() time.Time) *Builder {
	if clock == nil {
		clock = time.Now
	}
	return &Builder{now: clock}
}

func (b *Builder) header(typ Type, tx transaction.Aggregate) Header {
	return Header{
		Type:          typ,
		TransactionID: tx.ID().String(),
		Kind:          string(tx.Kind()),
		Status:        tx.Status().String(),
		BillerName:    tx.BillerName(),
		OccurredOn:    b.now().UTC(),
	}
}

func (b *Builder) snapshot(tx transaction.Aggregate) (Snapshot, error) {
	doc, err := settings.Obfuscate(tx.BillerSettings())
	if err != nil {
		return Snapshot{}, fmt.Errorf("events: %w", err)
	}

	s := Snapshot{
		BillerSettings: doc,
		CreatedAt:      tx.CreatedAt().UTC(),
		UpdatedAt:      tx.UpdatedAt().UTC(),
	}
	switch t := tx.(type) {
	case *transaction.ChargeTransaction:
		s.PaymentType = t.PaymentType()
		s.Card = CardOf(t.PaymentInformation())
	case *transaction.RebillUpdateTransaction:
		s.Card = CardOf(t.PaymentInformation())
	}
	if s.Card != nil && s.Card.CardHash == "" {
		s.Card.CardHash = fromLedger(tx, cardHashReaders)
	}
	return s, nil
}

// Created builds the creation event.
func (b *Builder) Created(tx transaction.Aggregate) (*TransactionCreatedEvent, error) {
	snapshot, err := b.snapshot(tx)
	if err != nil {
		return nil, err
	}

	e := &TransactionCreatedEvent{
		Header:   b.header(TypeTransactionCreated, tx),
		Snapshot: snapshot,
	}

	switch t := tx.(type) {
	case *transaction.ChargeTransaction:
		charge := t.ChargeInformation()
		e.SiteID = t.SiteID().String()
		e.PaymentMethod = t.PaymentMethod()
		e.PaymentTemplate = t.IsPaymentTemplate()
		e.Amount = charge.Amount.StringFixed(2)
		e.Currency = charge.Currency
		e.Rebill = rebillOf(charge.Rebill)
		e.With3D = t.With3D()
	case *transaction.RebillUpdateTransaction:
		e.PreviousTransactionID = t.PreviousTransactionID().String()
		e.RebillOperation = string(t.Operation())
		e.Rebill = rebillOf(t.Rebill())
		e.PaymentTemplate = t.IsPaymentTemplate()
		if charge := t.ChargeInformation(); charge != nil {
			e.Amount = charge.Amount.StringFixed(2)
			e.Currency = charge.Currency
		}
	}
	return e, nil
}

// Build returns the event for the transaction's terminal status, using resp
// for the biller outcome. ok is false while the transaction is pending.
func (b *Builder) Build(tx transaction.Aggregate, resp biller.Response) (e Event, ok bool, err error) {
	if !tx.Status().IsTerminal() {
		return nil, false, nil
	}

	var outcome Outcome
	if resp != nil {
		outcome = Outcome{
			Code:                resp.Code(),
			Reason:              resp.Reason(),
			BillerTransactionID: resp.BillerTransactionID(),
		}
	}
	if outcome.BillerTransactionID == "" {
		outcome.BillerTransactionID = fromLedger(tx, referenceReaders)
	}
	snapshot, err := b.snapshot(tx)
	if err != nil {
		return nil, false, err
	}

	switch tx.Status() {
	case transaction.StatusApproved:
		return &TransactionApprovedEvent{
			Header:         b.header(TypeTransactionApproved, tx),
			Snapshot:       snapshot,
			Outcome:        outcome,
			ThreedsVersion: versionOf(tx),
		}, true, nil
	case transaction.StatusDeclined:
		return &TransactionDeclinedEvent{
			Header:         b.header(TypeTransactionDeclined, tx),
			Snapshot:       snapshot,
			Outcome:        outcome,
			ThreedsVersion: versionOf(tx),
		}, true, nil
	case transaction.StatusAborted:
		return &TransactionAbortedEvent{
			Header:   b.header(TypeTransactionAborted, tx),
			Snapshot: snapshot,
			Outcome:  outcome,
		}, true, nil
	default:
		return nil, false, nil
	}
}

// CardOf reduces payment information to its non-sensitive card fields. It
// returns nil for payments that are not cards.
func CardOf(p transaction.PaymentInformation) *Card {
	switch c := p.(type) {
	case transaction.NewCreditCard:
		return &Card{
			First6:          c.First6(),
			Last4:           c.Last4(),
			ExpirationMonth: c.ExpirationMonth,
			ExpirationYear:  c.ExpirationYear,
			CVV2Check:       c.CVV2Check(),
		}
	case transaction.ExistingCreditCard:
		return &Card{
			First6:          c.Bin,
			Last4:           c.LastFour,
			ExpirationMonth: c.ExpirationMonth,
			ExpirationYear:  c.ExpirationYear,
			CardHash:        c.CardHash,
		}
	default:
		return nil
	}
}

func rebillOf(r *transaction.Rebill) *Rebill {
	if r == nil {
		return nil
	}
	return &Rebill{Amount: r.Amount.StringFixed(2), Frequency: r.Frequency, Start: r.Start}
}

func versionOf(tx transaction.Aggregate) *int {
	if v, ok := tx.ThreedsVersion(); ok {
		return &v
	}
	return nil
}
