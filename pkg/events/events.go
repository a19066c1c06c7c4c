// Package events defines the domain events published when a transaction is
// created or reaches a terminal state.
//
// Events never carry secrets: biller settings are obfuscated and card data is
// reduced to first6, last4, expiry and whether a CVV was supplied.
package events

import (
	"time"
)

// Type names a domain event.
type Type string

const (
	TypeTransactionCreated  Type = "transaction.created"
	TypeTransactionApproved Type = "transaction.approved"
	TypeTransactionDeclined Type = "transaction.declined"
	TypeTransactionAborted  Type = "transaction.aborted"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() Type
	AggregateID() string
}

// Header is shared by every event.
type Header struct {
	Type          Type      `json:"type"`
	TransactionID string    `json:"transactionId"`
	Kind          string    `json:"transactionType"`
	Status        string    `json:"status"`
	BillerName    string    `json:"billerName"`
	OccurredOn    time.Time `json:"occurredOn"`
}

func (h Header) EventType() Type     { return h.Type }
func (h Header) AggregateID() string { return h.TransactionID }

// Card is the non-sensitive view of a card.
type Card struct {
	First6          string `json:"first6,omitempty"`
	Last4           string `json:"last4,omitempty"`
	ExpirationMonth int    `json:"expirationMonth,omitempty"`
	ExpirationYear  int    `json:"expirationYear,omitempty"`
	CVV2Check       bool   `json:"cvv2Check"`
	CardHash        string `json:"cardHash,omitempty"`
}

// Rebill is the schedule attached to a charge.
type Rebill struct {
	Amount    string `json:"amount"`
	Frequency int    `json:"frequency"`
	Start     int    `json:"start"`
}

// Outcome is what the biller answered.
type Outcome struct {
	Code                string `json:"code,omitempty"`
	Reason              string `json:"reason,omitempty"`
	BillerTransactionID string `json:"billerTransactionId,omitempty"`
}

// Snapshot is the obfuscated state of the transaction carried by the
// creation event and every terminal event.
type Snapshot struct {
	PaymentType    string         `json:"paymentType,omitempty"`
	Card           *Card          `json:"card,omitempty"`
	BillerSettings map[string]any `json:"billerChargeSettings,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TransactionCreatedEvent is published once, when a transaction is first
// stored.
type TransactionCreatedEvent struct {
	Header
	Snapshot

	SiteID                string  `json:"siteId,omitempty"`
	PreviousTransactionID string  `json:"previousTransactionId,omitempty"`
	RebillOperation       string  `json:"rebillOperation,omitempty"`
	PaymentMethod         string  `json:"paymentMethod,omitempty"`
	PaymentTemplate       bool    `json:"paymentTemplate"`
	Amount                string  `json:"amount,omitempty"`
	Currency              string  `json:"currency,omitempty"`
	Rebill                *Rebill `json:"rebill,omitempty"`
	With3D                bool    `json:"with3D"`
}

// TransactionApprovedEvent is published when a transaction is approved.
type TransactionApprovedEvent struct {
	Header
	Snapshot
	Outcome

	ThreedsVersion *int `json:"threedsVersion,omitempty"`
}

// TransactionDeclinedEvent is published when a transaction is declined.
type TransactionDeclinedEvent struct {
	Header
	Snapshot
	Outcome

	ThreedsVersion *int `json:"threedsVersion,omitempty"`
}

// TransactionAbortedEvent is published when a transaction could not be
// completed.
type TransactionAbortedEvent struct {
	Header
	Snapshot
	Outcome
}
