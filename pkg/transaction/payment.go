package transaction

import (
	"github.com/shopspring/decimal"
)

// PaymentInformationType discriminates the payment variants.
type PaymentInformationType string

const (
	PaymentNewCreditCard      PaymentInformationType = "new_credit_card"
	PaymentExistingCreditCard PaymentInformationType = "existing_credit_card"
	PaymentCheck              PaymentInformationType = "check"
	PaymentOther              PaymentInformationType = "other"
)

// PaymentInformation is one of NewCreditCard, ExistingCreditCard, Check or
// Other.
type PaymentInformation interface {
	PaymentInformationType() PaymentInformationType
}

// CardOwner is the billing identity attached to a card.
type CardOwner struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty" validate:"omitempty,len=2"`
	Phone     string `json:"phone,omitempty"`
}

// NewCreditCard is a card presented for the first time. Number and CVV never
// serialize; Bin, LastFour and CVVProvided carry what survives persistence.
type NewCreditCard struct {
	Number          string    `json:"-" validate:"required,numeric,min=12,max=19"`
	CVV             string    `json:"-" validate:"omitempty,numeric,min=3,max=4"`
	ExpirationMonth int       `json:"expirationMonth" validate:"required,min=1,max=12"`
	ExpirationYear  int       `json:"expirationYear" validate:"required,min=2000,max=2100"`
	Owner           CardOwner `json:"owner"`

	Bin         string `json:"first6"`
	LastFour    string `json:"last4"`
	CVVProvided bool   `json:"cvv2Check"`
}

func (NewCreditCard) PaymentInformationType() PaymentInformationType {
	return PaymentNewCreditCard
}

// First6 returns the card BIN.
func (c NewCreditCard) First6() string {
	if len(c.Number) >= 6 {
		return c.Number[:6]
	}
	return c.Bin
}

// Last4 returns the last four digits of the card number.
func (c NewCreditCard) Last4() string {
	if len(c.Number) >= 4 {
		return c.Number[len(c.Number)-4:]
	}
	return c.LastFour
}

// CVV2Check reports whether a CVV was supplied with the charge.
func (c NewCreditCard) CVV2Check() bool {
	return c.CVV != "" || c.CVVProvided
}

func (c NewCreditCard) masked() NewCreditCard {
	c.Bin = c.First6()
	c.LastFour = c.Last4()
	c.CVVProvided = c.CVV2Check()
	c.Number = ""
	c.CVV = ""
	return c
}

// ExistingCreditCard is a stored card referenced through a payment template.
type ExistingCreditCard struct {
	CardHash          string `json:"cardHash" validate:"required"`
	PaymentTemplateID string `json:"paymentTemplateId,omitempty"`

	// SecRev marks a template charged through the security-revalidation flow.
	SecRev bool `json:"secRev,omitempty"`

	Bin             string `json:"first6,omitempty"`
	LastFour        string `json:"last4,omitempty"`
	ExpirationMonth int    `json:"expirationMonth,omitempty"`
	ExpirationYear  int    `json:"expirationYear,omitempty"`
}

func (ExistingCreditCard) PaymentInformationType() PaymentInformationType {
	return PaymentExistingCreditCard
}

// Check is an ACH or electronic check payment.
type Check struct {
	RoutingNumber string `json:"routingNumber" validate:"required,numeric,len=9"`
	AccountNumber string `json:"-" validate:"required,numeric,min=4,max=17"`
	SavingAccount bool   `json:"savingAccount"`
	SSNLast4      string `json:"socialSecurityLast4,omitempty" validate:"omitempty,numeric,len=4"`

	AccountLast4 string `json:"accountLast4"`
}

func (Check) PaymentInformationType() PaymentInformationType {
	return PaymentCheck
}

func (c Check) masked() Check {
	if len(c.AccountNumber) >= 4 {
		c.AccountLast4 = c.AccountNumber[len(c.AccountNumber)-4:]
	}
	c.AccountNumber = ""
	return c
}

// Other covers alternative methods (crypto wallets, redirect flows).
type Other struct {
	Method string `json:"method" validate:"required"`
}

func (Other) PaymentInformationType() PaymentInformationType {
	return PaymentOther
}

// ChargeInformation is what is charged now and optionally on rebill.
type ChargeInformation struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3,uppercase"`
	Rebill   *Rebill         `json:"rebill,omitempty"`
}

// Rebill schedules recurring charges. Frequency and Start are in days.
type Rebill struct {
	Amount    decimal.Decimal `json:"amount"`
	Frequency int             `json:"frequency" validate:"gt=0"`
	Start     int             `json:"start" validate:"gte=0"`
}
