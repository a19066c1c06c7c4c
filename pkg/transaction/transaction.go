// Package transaction models a payment transaction as a strict state machine
// with an append-only ledger of biller interactions.
//
// A transaction starts Pending and ends in exactly one of Approved, Declined
// or Aborted. Once terminal it is immutable. The 3DS version is write-once.
package transaction

import (
	"encoding/json"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/settings"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusAborted  Status = "aborted"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined || s == StatusAborted
}

func (s Status) String() string {
	return string(s)
}

// Kind identifies the concrete transaction type.
type Kind string

const (
	KindCharge       Kind = "charge"
	KindRebillUpdate Kind = "rebill_update"
)

// Aggregate is satisfied by every concrete transaction type.
type Aggregate interface {
	ID() uuid.UUID
	Kind() Kind
	Status() Status
	BillerName() string
	BillerSettings() settings.BillerSettings
	Interactions() []BillerInteraction
	FindInResponses(extract func(payload string) (string, bool)) (string, bool)
	ThreedsVersion() (int, bool)
	CreatedAt() time.Time
	UpdatedAt() time.Time

	Approve() error
	Decline() error
	Abort() error
	SetThreedsVersion(v int) error
	AddInteraction(t InteractionType, payload string, at time.Time) error
	Record(resp biller.Response) error

	core() *Transaction
}

// Transaction holds the state shared by all transaction types. It is embedded
// by ChargeTransaction and RebillUpdateTransaction.
type Transaction struct {
	id             uuid.UUID
	kind           Kind
	status         Status
	billerName     string
	settings       settings.BillerSettings
	interactions   []BillerInteraction
	threedsVersion *int
	createdAt      time.Time
	updatedAt      time.Time
}

func newTransaction(id uuid.UUID, kind Kind, billerName string, s settings.BillerSettings) Transaction {
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()
	return Transaction{
		id:         id,
		kind:       kind,
		status:     StatusPending,
		billerName: billerName,
		settings:   s,
		createdAt:  now,
		updatedAt:  now,
	}
}

func (t *Transaction) core() *Transaction { return t }

func (t *Transaction) ID() uuid.UUID                           { return t.id }
func (t *Transaction) Kind() Kind                              { return t.kind }
func (t *Transaction) Status() Status                          { return t.status }
func (t *Transaction) BillerName() string                      { return t.billerName }
func (t *Transaction) BillerSettings() settings.BillerSettings { return t.settings }
func (t *Transaction) CreatedAt() time.Time                    { return t.createdAt }
func (t *Transaction) UpdatedAt() time.Time                    { return t.updatedAt }
func (t *Transaction) IsPending() bool                         { return t.status == StatusPending }

// Interactions returns a copy of the ledger in insertion order.
func (t *Transaction) Interactions() []BillerInteraction {
	out := make([]BillerInteraction, len(t.interactions))
	copy(out, t.interactions)
	return out
}

// ThreedsVersion returns the negotiated 3DS version, if any.
func (t *Transaction) ThreedsVersion() (int, bool) {
	if t.threedsVersion == nil {
		return 0, false
	}
	return *t.threedsVersion, true
}

// Approve moves a pending transaction to approved.
func (t *Transaction) Approve() error {
	return t.transition(StatusApproved, "approve")
}

// Decline moves a pending transaction to declined.
func (t *Transaction) Decline() error {
	return t.transition(StatusDeclined, "decline")
}

// Abort moves a pending transaction to aborted.
func (t *Transaction) Abort() error {
	return t.transition(StatusAborted, "abort")
}

func (t *Transaction) transition(to Status, action string) error {
	if t.status != StatusPending {
		return &StateError{From: t.status, Action: action}
	}
	t.status = to
	t.touch()
	return nil
}

// SetThreedsVersion records the 3DS protocol version. Setting the same value
// again is a no-op; a different value is a conflict.
func (t *Transaction) SetThreedsVersion(v int) error {
	if v != 1 && v != 2 {
		return ErrInvalidThreeDSVersion
	}
	if t.threedsVersion != nil {
		if *t.threedsVersion != v {
			return ErrThreeDSVersionConflict
		}
		return nil
	}
	if t.status.IsTerminal() {
		return ErrTerminal
	}
	t.threedsVersion = &v
	t.touch()
	return nil
}

// AddInteraction appends one ledger entry.
func (t *Transaction) AddInteraction(typ InteractionType, payload string, at time.Time) error {
	if t.status.IsTerminal() {
		return ErrTerminal
	}
	if at.IsZero() {
		at = time.Now()
	}
	t.interactions = append(t.interactions, BillerInteraction{
		Type:      typ,
		Payload:   payload,
		CreatedAt: at.UTC(),
	})
	t.touch()
	return nil
}

// AddResponseInteractions appends the request and response of one biller
// call. A response that never reached the biller is recorded as a synthetic
// {code, reason} document so aborts remain visible in the ledger.
func (t *Transaction) AddResponseInteractions(resp biller.Response) error {
	if req := resp.RequestPayload(); req != nil {
		if err := t.AddInteraction(InteractionRequest, *req, resp.RequestDate()); err != nil {
			return err
		}
	}

	payload := resp.ResponsePayload()
	if payload == nil {
		doc, err := json.Marshal(map[string]string{
			"code":   resp.Code(),
			"reason": resp.Reason(),
		})
		if err != nil {
			return err
		}
		s := string(doc)
		payload = &s
	}
	return t.AddInteraction(InteractionResponse, *payload, resp.ResponseDate())
}

// Record folds a biller response into the transaction: the exchange is
// appended to the ledger and the status follows the response result. A
// pending result leaves the status untouched.
func (t *Transaction) Record(resp biller.Response) error {
	if t.status.IsTerminal() {
		return &StateError{From: t.status, Action: "record"}
	}
	if err := t.AddResponseInteractions(resp); err != nil {
		return err
	}

	switch resp.Result() {
	case biller.ResultApproved:
		return t.Approve()
	case biller.ResultDeclined:
		return t.Decline()
	case biller.ResultAborted:
		return t.Abort()
	default:
		return nil
	}
}

// FindInResponses scans response entries newest first and returns the first
// value extract yields. Used to rebuild biller ids and card hashes from the
// ledger.
func (t *Transaction) FindInResponses(extract func(payload string) (string, bool)) (string, bool) {
	for i := len(t.interactions) - 1; i >= 0; i-- {
		in := t.interactions[i]
		if !in.IsResponse() {
			continue
		}
		if v, ok := extract(in.Payload); ok {
			return v, true
		}
	}
	return "", false
}

func (t *Transaction) touch() {
	t.updatedAt = time.Now().UTC()
}
