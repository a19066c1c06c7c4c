// Package qysso normalizes Qysso payloads. Qysso reports its outcome inside
// the response document (reply_code/reply_desc) rather than in the envelope.
package qysso

import (
	"time"

	"paygate/pkg/biller"
)

const (
	ReplyApproved = "000"
	ReplyRedirect = "553"

	CircuitBreakerOpenCode    = "9999"
	CircuitBreakerOpenMessage = "Circuit breaker open"

	FieldReplyCode = "reply_code"
	FieldReplyDesc = "reply_desc"
	FieldTransID   = "trans_id"
	FieldRedirect  = "D3Redirect"
	FieldRecurring = "recurring_series"
)

var (
	abortedCodes     = biller.NewCodeSet(CircuitBreakerOpenCode, "520", "521")
	clientErrorCodes = biller.NewCodeSet("500", "501", "502", "503", "504", "505", "506", "507", "510", "512")
)

// Response is a normalized Qysso response.
type Response struct {
	biller.Base

	response biller.Fieldset
}

var _ biller.Response = (*Response)(nil)

// Normalize decodes a Qysso payload. Unknown reply codes decline.
func Normalize(payload string, requestDate, responseDate time.Time) (*Response, error) {
	env, err := biller.DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}

	code := env.Response.Get(FieldReplyCode)
	if code == "" {
		code = env.Code
	}
	reason := env.Response.Get(FieldReplyDesc)
	if reason == "" {
		reason = env.Reason
	}

	var request *string
	if env.RawRequest != "" {
		request = biller.StringPtr(env.RawRequest)
	}

	return &Response{
		Base: biller.NewBase(biller.Fields{
			Biller:          biller.Qysso,
			Result:          classify(code),
			Code:            code,
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
		Base:     biller.NewBase(biller.AbortedFields(biller.Qysso, CircuitBreakerOpenCode, CircuitBreakerOpenMessage, err)),
		response: biller.Fieldset{},
	}
}

func classify(code string) biller.Result {
	switch {
	case code == ReplyApproved:
		return biller.ResultApproved
	case code == ReplyRedirect:
		return biller.ResultPending
	case abortedCodes.Contains(code):
		return biller.ResultAborted
	default:
		return biller.ResultDeclined
	}
}

func (r *Response) BillerTransactionID() string {
	return r.response.Get(FieldTransID)
}

// RedirectURL is where the customer completes a pending (553) charge.
func (r *Response) RedirectURL() string {
	return r.response.Get(FieldRedirect)
}

func (r *Response) RecurringSeries() string {
	return r.response.Get(FieldRecurring)
}

func (r *Response) ShouldReturn400() bool {
	return clientErrorCodes.Contains(r.Code())
}
