package transaction

import (
	"fmt"
	"strings"

	"paygate/pkg/biller"
	"paygate/pkg/settings"

	"github.com/google/uuid"
)

// Payment types accepted on a charge.
const (
	PaymentTypeCC     = "cc"
	PaymentTypeChecks = "checks"
	PaymentTypeCrypto = "cryptocurrency"
)

var knownBillers = map[string]struct{}{
	biller.Rocketgate: {},
	biller.Netbilling: {},
	biller.Epoch:      {},
	biller.Qysso:      {},
	biller.Pumapay:    {},
	biller.Legacy:     {},
}

// ChargeParams are the validated inputs of a new charge.
type ChargeParams struct {
	// ID is optional; a random id is generated when zero.
	ID            uuid.UUID
	SiteID        uuid.UUID
	BillerName    string
	Settings      settings.BillerSettings
	PaymentType   string
	PaymentMethod string
	Payment       PaymentInformation
	Charge        ChargeInformation
	With3D        bool
}

// ChargeTransaction is a purchase, with or without a rebill schedule.
type ChargeTransaction struct {
	Transaction

	paymentType   string
	paymentMethod string
	payment       PaymentInformation
	charge        ChargeInformation
	siteID        uuid.UUID
	with3D        bool
}

var _ Aggregate = (*ChargeTransaction)(nil)

// NewChargeTransaction creates a pending charge.
func NewChargeTransaction(p ChargeParams) (*ChargeTransaction, error) {
	if p.SiteID == uuid.Nil {
		return nil, fmt.Errorf("%w: site id is required", ErrInvalidTransaction)
	}
	if err := checkBiller(p.BillerName, p.Settings); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.PaymentType) == "" {
		return nil, fmt.Errorf("%w: payment type is required", ErrInvalidPaymentInformation)
	}
	if err := validatePayment(p.Payment); err != nil {
		return nil, err
	}
	if err := validateCharge(p.Charge); err != nil {
		return nil, err
	}

	return &ChargeTransaction{
		Transaction:   newTransaction(p.ID, KindCharge, p.BillerName, p.Settings),
		paymentType:   p.PaymentType,
		paymentMethod: p.PaymentMethod,
		payment:       normalizePayment(p.Payment),
		charge:        p.Charge,
		siteID:        p.SiteID,
		with3D:        p.With3D,
	}, nil
}

func checkBiller(name string, s settings.BillerSettings) error {
	if _, ok := knownBillers[name]; !ok {
		return fmt.Errorf("%w: unknown biller %q", ErrInvalidTransaction, name)
	}
	if s != nil && s.Biller() != name {
		return fmt.Errorf("%w: %s settings on a %s transaction", ErrInvalidTransaction, s.Biller(), name)
	}
	return nil
}

// normalizePayment fills the derived card fields so they are available
// without the full number.
func normalizePayment(p PaymentInformation) PaymentInformation {
	switch v := p.(type) {
	case NewCreditCard:
		v.Bin = v.First6()
		v.LastFour = v.Last4()
		v.CVVProvided = v.CVV2Check()
		return v
	case *NewCreditCard:
		return normalizePayment(*v)
	case *ExistingCreditCard:
		return *v
	case *Check:
		return *v
	case *Other:
		return *v
	default:
		return p
	}
}

func (c *ChargeTransaction) PaymentType() string                    { return c.paymentType }
func (c *ChargeTransaction) PaymentMethod() string                  { return c.paymentMethod }
func (c *ChargeTransaction) PaymentInformation() PaymentInformation { return c.payment }
func (c *ChargeTransaction) ChargeInformation() ChargeInformation   { return c.charge }
func (c *ChargeTransaction) SiteID() uuid.UUID                      { return c.siteID }
func (c *ChargeTransaction) With3D() bool                           { return c.with3D }

// HasRebill reports whether the charge starts a subscription.
func (c *ChargeTransaction) HasRebill() bool {
	return c.charge.Rebill != nil
}

// IsPaymentTemplate reports a charge on a stored card.
func (c *ChargeTransaction) IsPaymentTemplate() bool {
	_, ok := c.payment.(ExistingCreditCard)
	return ok
}

// IsSecRev reports a payment-template charge flowing through security
// revalidation.
func (c *ChargeTransaction) IsSecRev() bool {
	card, ok := c.payment.(ExistingCreditCard)
	return ok && card.SecRev
}

// SetWith3D toggles 3DS for the next biller call.
func (c *ChargeTransaction) SetWith3D(with3D bool) error {
	if c.status != StatusPending {
		return ErrTerminal
	}
	if c.with3D != with3D {
		c.with3D = with3D
		c.touch()
	}
	return nil
}

// CreditCard returns the new card, if the charge carries one.
func (c *ChargeTransaction) CreditCard() (NewCreditCard, bool) {
	card, ok := c.payment.(NewCreditCard)
	return card, ok
}
