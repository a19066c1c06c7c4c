// Package legacy normalizes payloads of the legacy in-house processor.
package legacy

import (
	"time"

	"paygate/pkg/biller"
)

const (
	CodeSuccess = "0"

	CircuitBreakerOpenCode    = "9999"
	CircuitBreakerOpenMessage = "Circuit breaker open"

	FieldRedirectURL   = "redirectUrl"
	FieldTransactionID = "transactionId"
	FieldMemberID      = "memberId"
)

var (
	abortedCodes     = biller.NewCodeSet(CircuitBreakerOpenCode, "502", "504")
	clientErrorCodes = biller.NewCodeSet("400", "404", "409", "422")
)

// Response is a normalized legacy processor response.
type Response struct {
	biller.Base

	response biller.Fieldset
}

var _ biller.Response = (*Response)(nil)

// Normalize decodes a legacy payload.
func Normalize(payload string, requestDate, responseDate time.Time) (*Response, error) {
	env, err := biller.DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}

	var request *string
	if env.RawRequest != "" {
		request = biller.StringPtr(env.RawRequest)
	}

	return &Response{
		Base: biller.NewBase(biller.Fields{
			Biller:          biller.Legacy,
			Result:          classify(env),
			Code:            env.Code,
			Reason:          env.Reason,
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
		Base:     biller.NewBase(biller.AbortedFields(biller.Legacy, CircuitBreakerOpenCode, CircuitBreakerOpenMessage, err)),
		response: biller.Fieldset{},
	}
}

func classify(env *biller.Envelope) biller.Result {
	switch {
	case abortedCodes.Contains(env.Code):
		return biller.ResultAborted
	case env.Code == CodeSuccess && env.Response.Has(FieldRedirectURL):
		return biller.ResultPending
	case env.Code == CodeSuccess:
		return biller.ResultApproved
	default:
		return biller.ResultDeclined
	}
}

func (r *Response) BillerTransactionID() string {
	return r.response.Get(FieldTransactionID)
}

func (r *Response) RedirectURL() string {
	return r.response.Get(FieldRedirectURL)
}

func (r *Response) MemberID() string {
	return r.response.Get(FieldMemberID)
}

func (r *Response) ShouldReturn400() bool {
	return clientErrorCodes.Contains(r.Code())
}
