// Package netbilling normalizes Netbilling direct-mode payloads.
package netbilling

import (
	"time"

	"paygate/pkg/biller"
)

const (
	CodeApproved = "0"
	CodeAborted  = "9000"
	CodeNSF      = "105"

	CircuitBreakerOpenCode    = CodeAborted
	CircuitBreakerOpenMessage = "Circuit breaker open"

	FieldTransID     = "trans_id"
	FieldRecurringID = "recurring_id"
	FieldAuthCode    = "auth_code"
	FieldAuthMsg     = "auth_msg"
	FieldStatusCode  = "status_code"
	FieldMemberID    = "member_id"
)

var invalidRequestCodes = biller.NewCodeSet("6", "7", "8", "11", "303")

// Response is a normalized Netbilling response.
type Response struct {
	biller.Base

	response biller.Fieldset
}

var _ biller.Response = (*Response)(nil)

// Normalize decodes a Netbilling payload. Only the top-level code decides the
// result.
func Normalize(payload string, requestDate, responseDate time.Time) (*Response, error) {
	env, err := biller.DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}

	var request *string
	if env.RawRequest != "" {
		request = biller.StringPtr(env.RawRequest)
	}

	reason := env.Reason
	if reason == "" {
		reason = env.Response.Get(FieldAuthMsg)
	}

	return &Response{
		Base: biller.NewBase(biller.Fields{
			Biller:          biller.Netbilling,
			Result:          classify(env.Code),
			Code:            env.Code,
			Reason:          reason,
			RequestPayload:  request,
			ResponsePayload: biller.StringPtr(payload),
			RequestDate:     requestDate,
			ResponseDate:    responseDate,
		}),
		response: env.Response,
	}, nil
}

// Normalizer adapts Normalize to the biller.Normalizer signature.
func Normalizer(payload string, requestDate, responseDate time.Time) (biller.Response, error) {
	r, err := Normalize(payload, requestDate, responseDate)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// NewAbortedResponse builds the fallback response. A nil err yields the
// circuit-breaker-open code.
func NewAbortedResponse(err error) *Response {
	return &Response{
		Base:     biller.NewBase(biller.AbortedFields(biller.Netbilling, CircuitBreakerOpenCode, CircuitBreakerOpenMessage, err)),
		response: biller.Fieldset{},
	}
}

func classify(code string) biller.Result {
	switch code {
	case CodeApproved:
		return biller.ResultApproved
	case CodeAborted:
		return biller.ResultAborted
	default:
		return biller.ResultDeclined
	}
}

func (r *Response) BillerTransactionID() string {
	return r.response.Get(FieldTransID)
}

// RecurringID identifies the rebill created alongside the charge.
func (r *Response) RecurringID() string {
	return r.response.Get(FieldRecurringID)
}

func (r *Response) AuthCode() string {
	return r.response.Get(FieldAuthCode)
}

func (r *Response) ShouldReturn400() bool {
	return invalidRequestCodes.Contains(r.Code())
}

// IsNsfTransaction reports an insufficient-funds decline.
func (r *Response) IsNsfTransaction() bool {
	return r.Code() == CodeNSF
}

// ExtractTransID reads the transaction id out of a stored response payload.
func ExtractTransID(payload string) (string, bool) {
	env, err := biller.DecodeEnvelope(payload)
	if err != nil {
		return "", false
	}
	v := env.Response.Get(FieldTransID)
	return v, v != ""
}
