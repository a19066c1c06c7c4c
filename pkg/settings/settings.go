// Package settings holds the per-biller charge settings attached to a
// transaction: merchant credentials, site descriptors and similar values the
// network clients need. The core treats them as opaque except for
// obfuscation before they leave the process.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"

	"paygate/pkg/biller"
)

// ObfuscationMarker replaces every secret value on emitted events.
const ObfuscationMarker = "*******"

var (
	// ErrUnknownBiller is returned when decoding settings for a biller this
	// package does not know.
	ErrUnknownBiller = errors.New("settings: unknown biller")
)

// BillerSettings is implemented by every settings type.
type BillerSettings interface {
	Biller() string

	// SecretFields lists the JSON field names that must never be emitted.
	SecretFields() []string
}

// Rocketgate settings.
type Rocketgate struct {
	MerchantID          string `json:"merchantId"`
	MerchantPassword    string `json:"merchantPassword"`
	MerchantCustomerID  string `json:"merchantCustomerId,omitempty"`
	MerchantInvoiceID   string `json:"merchantInvoiceId,omitempty"`
	MerchantAccount     string `json:"merchantAccount,omitempty"`
	MerchantSiteID      string `json:"merchantSiteId,omitempty"`
	MerchantProductID   string `json:"merchantProductId,omitempty"`
	MerchantDescriptor  string `json:"merchantDescriptor,omitempty"`
	IPAddress           string `json:"ipAddress,omitempty"`
	ReferringMerchantID string `json:"referringMerchantId,omitempty"`
	SharedSecret        string `json:"sharedSecret,omitempty"`
	Simplified3DS       bool   `json:"simplified3DS"`
}

func (Rocketgate) Biller() string { return biller.Rocketgate }
func (Rocketgate) SecretFields() []string {
	return []string{"merchantPassword", "sharedSecret"}
}

// Netbilling settings.
type Netbilling struct {
	SiteTag           string `json:"siteTag"`
	AccountID         string `json:"accountId"`
	MerchantPassword  string `json:"merchantPassword"`
	InitialDays       int    `json:"initialDays,omitempty"`
	BinRouting        string `json:"binRouting,omitempty"`
	DisableFraudCheck bool   `json:"disableFraudChecks"`
	BillerMemberID    string `json:"billerMemberId,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
	Browser           string `json:"browser,omitempty"`
	Host              string `json:"host,omitempty"`
}

func (Netbilling) Biller() string { return biller.Netbilling }
func (Netbilling) SecretFields() []string {
	return []string{"merchantPassword"}
}

// Epoch settings.
type Epoch struct {
	ClientID              string `json:"clientId"`
	ClientKey             string `json:"clientKey"`
	ClientVerificationKey string `json:"clientVerificationKey"`
	RedirectURL           string `json:"redirectUrl,omitempty"`
	NotificationURL       string `json:"notificationUrl,omitempty"`
	InvoiceID             string `json:"invoiceId,omitempty"`
}

func (Epoch) Biller() string { return biller.Epoch }
func (Epoch) SecretFields() []string {
	return []string{"clientKey", "clientVerificationKey"}
}

// Qysso settings.
type Qysso struct {
	CompanyNum      string `json:"companyNum"`
	PersonalHashKey string `json:"personalHashKey"`
	RedirectURL     string `json:"redirectUrl,omitempty"`
	NotificationURL string `json:"notificationUrl,omitempty"`
}

func (Qysso) Biller() string { return biller.Qysso }
func (Qysso) SecretFields() []string {
	return []string{"personalHashKey"}
}

// Pumapay settings.
type Pumapay struct {
	BusinessID    string `json:"businessId"`
	BusinessModel string `json:"businessModel"`
	APIKey        string `json:"apiKey"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
}

func (Pumapay) Biller() string { return biller.Pumapay }
func (Pumapay) SecretFields() []string {
	return []string{"apiKey"}
}

// Legacy settings.
type Legacy struct {
	LegacyMemberID  string            `json:"legacyMemberId,omitempty"`
	ReturnURL       string            `json:"returnUrl,omitempty"`
	PostbackURL     string            `json:"postbackUrl,omitempty"`
	Others          map[string]string `json:"others,omitempty"`
	MerchantAPIKey  string            `json:"merchantApiKey,omitempty"`
	SiteIdentifier  string            `json:"siteIdentifier,omitempty"`
	ProductCategory string            `json:"productCategory,omitempty"`
}

func (Legacy) Biller() string { return biller.Legacy }
func (Legacy) SecretFields() []string {
	return []string{"merchantApiKey"}
}

// Encode renders settings as JSON. Nil settings encode as null.
func Encode(s BillerSettings) (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("settings: encode %s: %w", s.Biller(), err)
	}
	return data, nil
}

// Decode restores settings for the named biller. A null document yields nil
// settings, which is valid for billers such as Pumapay rebill updates.
func Decode(billerName string, raw json.RawMessage) (BillerSettings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var (
		s   BillerSettings
		err error
	)
	switch billerName {
	case biller.Rocketgate:
		var v Rocketgate
		err = json.Unmarshal(raw, &v)
		s = v
	case biller.Netbilling:
		var v Netbilling
		err = json.Unmarshal(raw, &v)
		s = v
	case biller.Epoch:
		var v Epoch
		err = json.Unmarshal(raw, &v)
		s = v
	case biller.Qysso:
		var v Qysso
		err = json.Unmarshal(raw, &v)
		s = v
	case biller.Pumapay:
		var v Pumapay
		err = json.Unmarshal(raw, &v)
		s = v
	case biller.Legacy:
		var v Legacy
		err = json.Unmarshal(raw, &v)
		s = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBiller, billerName)
	}
	if err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", billerName, err)
	}
	return s, nil
}

// Obfuscate renders settings as a generic document with every secret field
// replaced by ObfuscationMarker.
func Obfuscate(s BillerSettings) (map[string]any, error) {
	if s == nil {
		return nil, nil
	}

	raw, err := Encode(s)
	if err != nil {
		return nil, err
	}

	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("settings: obfuscate %s: %w", s.Biller(), err)
	}

	for _, field := range s.SecretFields() {
		if _, ok := doc[field]; ok {
			doc[field] = ObfuscationMarker
		}
	}
	return doc, nil
}
