// Package epoch normalizes Epoch payloads. New sales are redirect based: the
// first call only yields a redirect URL, the final answer arrives later in a
// postback carrying an "ans" field.
package epoch

import (
	"strings"
	"time"

	"paygate/pkg/biller"
)

const (
	CodeSuccess = "0"

	CircuitBreakerOpenCode    = "9999"
	CircuitBreakerOpenMessage = "Circuit breaker open"

	FieldRedirectURL   = "redirectURL"
	FieldSessionID     = "sessionId"
	FieldAnswer        = "ans"
	FieldTransactionID = "transaction_id"
	FieldOrderID       = "order_id"
	FieldMemberID      = "member_id"
)

var (
	abortedCodes     = biller.NewCodeSet(CircuitBreakerOpenCode, "EPOCH_TIMEOUT", "EPOCH_UNAVAILABLE")
	clientErrorCodes = biller.NewCodeSet("10", "11", "12", "20")
)

// Response is a normalized Epoch response.
type Response struct {
	biller.Base

	response biller.Fieldset
}

var _ biller.Response = (*Response)(nil)

// Normalize decodes an Epoch payload.
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
			Biller:          biller.Epoch,
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
		Base:     biller.NewBase(biller.AbortedFields(biller.Epoch, CircuitBreakerOpenCode, CircuitBreakerOpenMessage, err)),
		response: biller.Fieldset{},
	}
}

func classify(env *biller.Envelope) biller.Result {
	ans := strings.ToUpper(env.Response.Get(FieldAnswer))
	switch {
	case abortedCodes.Contains(env.Code):
		return biller.ResultAborted
	case ans != "":
		// postback answers look like "Y123456APPROVED" or "NDECLINED"
		if strings.HasPrefix(ans, "Y") {
			return biller.ResultApproved
		}
		return biller.ResultDeclined
	case env.Code == CodeSuccess && env.Response.Has(FieldRedirectURL):
		return biller.ResultPending
	default:
		return biller.ResultDeclined
	}
}

func (r *Response) BillerTransactionID() string {
	return r.response.FirstOf(FieldTransactionID, FieldOrderID)
}

func (r *Response) RedirectURL() string {
	return r.response.Get(FieldRedirectURL)
}

func (r *Response) SessionID() string {
	return r.response.Get(FieldSessionID)
}

func (r *Response) MemberID() string {
	return r.response.Get(FieldMemberID)
}

func (r *Response) ShouldReturn400() bool {
	return clientErrorCodes.Contains(r.Code())
}
