package transaction

import (
	"encoding/json"
	"fmt"
	"time"

	"paygate/pkg/settings"

	"github.com/google/uuid"
)

// snapshot is the persisted form of every transaction kind.
type snapshot struct {
	ID             uuid.UUID           `json:"id"`
	Kind           Kind                `json:"kind"`
	Status         Status              `json:"status"`
	BillerName     string              `json:"billerName"`
	Settings       json.RawMessage     `json:"billerChargeSettings"`
	Interactions   []BillerInteraction `json:"billerInteractions"`
	ThreedsVersion *int                `json:"threedsVersion"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`

	Charge       *chargeSnapshot       `json:"charge,omitempty"`
	RebillUpdate *rebillUpdateSnapshot `json:"rebillUpdate,omitempty"`
}

type chargeSnapshot struct {
	PaymentType   string            `json:"paymentType"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	Payment       *paymentSnapshot  `json:"paymentInformation"`
	Charge        ChargeInformation `json:"chargeInformation"`
	SiteID        uuid.UUID         `json:"siteId"`
	With3D        bool              `json:"with3D"`
}

type rebillUpdateSnapshot struct {
	PreviousTransactionID uuid.UUID          `json:"previousTransactionId"`
	Operation             RebillOperation    `json:"operation"`
	Rebill                *Rebill            `json:"rebill,omitempty"`
	Payment               *paymentSnapshot   `json:"paymentInformation,omitempty"`
	Charge                *ChargeInformation `json:"chargeInformation,omitempty"`
}

type paymentSnapshot struct {
	Type PaymentInformationType `json:"type"`
	Data json.RawMessage        `json:"data"`
}

// Marshal encodes a transaction for persistence. Card numbers, CVVs and
// check account numbers are dropped.
func Marshal(a Aggregate) ([]byte, error) {
	t := a.core()
	raw, err := settings.Encode(t.settings)
	if err != nil {
		return nil, err
	}
	s := snapshot{
		ID:             t.id,
		Kind:           t.kind,
		Status:         t.status,
		BillerName:     t.billerName,
		Settings:       raw,
		Interactions:   t.Interactions(),
		ThreedsVersion: t.threedsVersion,
		CreatedAt:      t.createdAt,
		UpdatedAt:      t.updatedAt,
	}

	switch v := a.(type) {
	case *ChargeTransaction:
		p, err := encodePayment(v.payment)
		if err != nil {
			return nil, err
		}
		s.Charge = &chargeSnapshot{
			PaymentType:   v.paymentType,
			PaymentMethod: v.paymentMethod,
			Payment:       p,
			Charge:        v.charge,
			SiteID:        v.siteID,
			With3D:        v.with3D,
		}
	case *RebillUpdateTransaction:
		p, err := encodePayment(v.payment)
		if err != nil {
			return nil, err
		}
		s.RebillUpdate = &rebillUpdateSnapshot{
			PreviousTransactionID: v.previousTransactionID,
			Operation:             v.operation,
			Rebill:                v.rebill,
			Payment:               p,
			Charge:                v.charge,
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, a)
	}

	return json.Marshal(s)
}

// Unmarshal restores a transaction written by Marshal.
func Unmarshal(data []byte) (Aggregate, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("transaction: decode snapshot: %w", err)
	}

	bs, err := settings.Decode(s.BillerName, s.Settings)
	if err != nil {
		return nil, err
	}
	core := Transaction{
		id:             s.ID,
		kind:           s.Kind,
		status:         s.Status,
		billerName:     s.BillerName,
		settings:       bs,
		interactions:   s.Interactions,
		threedsVersion: s.ThreedsVersion,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}

	switch s.Kind {
	case KindCharge:
		if s.Charge == nil {
			return nil, fmt.Errorf("%w: charge body missing", ErrInvalidTransaction)
		}
		p, err := decodePayment(s.Charge.Payment)
		if err != nil {
			return nil, err
		}
		return &ChargeTransaction{
			Transaction:   core,
			paymentType:   s.Charge.PaymentType,
			paymentMethod: s.Charge.PaymentMethod,
			payment:       p,
			charge:        s.Charge.Charge,
			siteID:        s.Charge.SiteID,
			with3D:        s.Charge.With3D,
		}, nil
	case KindRebillUpdate:
		if s.RebillUpdate == nil {
			return nil, fmt.Errorf("%w: rebill update body missing", ErrInvalidTransaction)
		}
		p, err := decodePayment(s.RebillUpdate.Payment)
		if err != nil {
			return nil, err
		}
		return &RebillUpdateTransaction{
			Transaction:           core,
			previousTransactionID: s.RebillUpdate.PreviousTransactionID,
			operation:             s.RebillUpdate.Operation,
			rebill:                s.RebillUpdate.Rebill,
			payment:               p,
			charge:                s.RebillUpdate.Charge,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
}

func encodePayment(p PaymentInformation) (*paymentSnapshot, error) {
	if p == nil {
		return nil, nil
	}
	var v any
	switch info := p.(type) {
	case NewCreditCard:
		v = info.masked()
	case Check:
		v = info.masked()
	default:
		v = info
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &paymentSnapshot{Type: p.PaymentInformationType(), Data: data}, nil
}

func decodePayment(s *paymentSnapshot) (PaymentInformation, error) {
	if s == nil {
		return nil, nil
	}
	var (
		p   PaymentInformation
		err error
	)
	switch s.Type {
	case PaymentNewCreditCard:
		var v NewCreditCard
		err = json.Unmarshal(s.Data, &v)
		p = v
	case PaymentExistingCreditCard:
		var v ExistingCreditCard
		err = json.Unmarshal(s.Data, &v)
		p = v
	case PaymentCheck:
		var v Check
		err = json.Unmarshal(s.Data, &v)
		p = v
	case PaymentOther:
		var v Other
		err = json.Unmarshal(s.Data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown payment type %q", ErrInvalidPaymentInformation, s.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentInformation, err)
	}
	return p, nil
}
