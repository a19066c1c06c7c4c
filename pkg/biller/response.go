package biller

import (
	"errors"
	"time"
)

// Result is the canonical outcome of a single biller call.
type Result string

const (
	ResultApproved Result = "approved"
	ResultDeclined Result = "declined"
	ResultPending  Result = "pending"
	ResultAborted  Result = "aborted"
)

// String returns the string representation of the result.
func (r Result) String() string {
	return string(r)
}

// Biller names as they appear in settings, metrics and stored transactions.
const (
	Rocketgate = "rocketgate"
	Netbilling = "netbilling"
	Epoch      = "epoch"
	Qysso      = "qysso"
	Pumapay    = "pumapay"
	Legacy     = "legacy"
)

// Response is the biller-agnostic view of one outbound call.
// Each biller package provides a concrete type embedding Base.
type Response interface {
	Biller() string
	Result() Result
	Code() string
	Reason() string

	// RequestPayload and ResponsePayload are the raw strings exchanged with
	// the biller, nil when the call never produced one (e.g. open circuit).
	RequestPayload() *string
	ResponsePayload() *string

	RequestDate() time.Time
	ResponseDate() time.Time

	BillerTransactionID() string

	// ShouldReturn400 reports whether the outcome must surface to the HTTP
	// boundary as a client error.
	ShouldReturn400() bool
}

// ThreeDSClassifier is implemented by responses of billers that take part in
// 3-D Secure negotiation.
type ThreeDSClassifier interface {
	Response

	ShouldRetryWithoutThreeD() bool
	ShouldRetryWithThreeD() bool
	IsSCARequired() bool
	ThreeDSVersion() (int, bool)
	IsFrictionless() bool
}

// Base holds the fields shared by every concrete response.
type Base struct {
	biller          string
	result          Result
	code            string
	reason          string
	requestPayload  *string
	responsePayload *string
	requestDate     time.Time
	responseDate    time.Time
}

// Fields is used by biller packages to construct a Base.
type Fields struct {
	Biller          string
	Result          Result
	Code            string
	Reason          string
	RequestPayload  *string
	ResponsePayload *string
	RequestDate     time.Time
	ResponseDate    time.Time
}

// NewBase builds an immutable Base from the given fields.
func NewBase(f Fields) Base {
	return Base{
		biller:          f.Biller,
		result:          f.Result,
		code:            f.Code,
		reason:          f.Reason,
		requestPayload:  copyString(f.RequestPayload),
		responsePayload: copyString(f.ResponsePayload),
		requestDate:     f.RequestDate,
		responseDate:    f.ResponseDate,
	}
}

func (b Base) Biller() string          { return b.biller }
func (b Base) Result() Result          { return b.result }
func (b Base) Code() string            { return b.code }
func (b Base) Reason() string          { return b.reason }
func (b Base) RequestDate() time.Time  { return b.requestDate }
func (b Base) ResponseDate() time.Time { return b.responseDate }

func (b Base) RequestPayload() *string  { return copyString(b.requestPayload) }
func (b Base) ResponsePayload() *string { return copyString(b.responsePayload) }

func (b Base) IsApproved() bool { return b.result == ResultApproved }
func (b Base) IsDeclined() bool { return b.result == ResultDeclined }
func (b Base) IsPending() bool  { return b.result == ResultPending }
func (b Base) IsAborted() bool  { return b.result == ResultAborted }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// MalformedPayloadError carries a payload the normalizer could not decode so
// the aborted response built from it still records what the biller sent.
type MalformedPayloadError struct {
	Payload      string
	RequestDate  time.Time
	ResponseDate time.Time
	Err          error
}

func (e *MalformedPayloadError) Error() string { return e.Err.Error() }
func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// AbortedFields returns the fields of an aborted response. reason is used
// when err is nil, which means the call never ran. A *MalformedPayloadError
// keeps its raw payload and dates.
func AbortedFields(name, code, reason string, err error) Fields {
	if err != nil {
		reason = err.Error()
	}
	now := time.Now()
	f := Fields{
		Biller:       name,
		Result:       ResultAborted,
		Code:         code,
		Reason:       reason,
		RequestDate:  now,
		ResponseDate: now,
	}

	var malformed *MalformedPayloadError
	if errors.As(err, &malformed) {
		f.ResponsePayload = StringPtr(malformed.Payload)
		f.RequestDate = malformed.RequestDate
		f.ResponseDate = malformed.ResponseDate
	}
	return f
}
