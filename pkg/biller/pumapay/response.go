// Package pumapay normalizes Pumapay payloads. A purchase first returns a QR
// code (or encrypted deep-link text) and settles later via postback.
package pumapay

import (
	"time"

	"paygate/pkg/biller"
)

const (
	CodeSuccess = "200"

	CircuitBreakerOpenCode    = "9999"
	CircuitBreakerOpenMessage = "Circuit breaker open"

	FieldQRCode        = "qrCode"
	FieldEncryptText   = "encryptText"
	FieldTransactionID = "transactionId"
	FieldPaymentID     = "paymentId"
)

var (
	abortedCodes     = biller.NewCodeSet(CircuitBreakerOpenCode, "500", "503")
	clientErrorCodes = biller.NewCodeSet("400", "401", "404", "422")
)

// Response is a normalized Pumapay response.
type Response struct {
	biller.Base

	response biller.Fieldset
}

var _ biller.Response = (*Response)(nil)

// Normalize decodes a Pumapay payload.
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
			Biller:          biller.Pumapay,
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
		Base:     biller.NewBase(biller.AbortedFields(biller.Pumapay, CircuitBreakerOpenCode, CircuitBreakerOpenMessage, err)),
		response: biller.Fieldset{},
	}
}

func classify(env *biller.Envelope) biller.Result {
	switch {
	case abortedCodes.Contains(env.Code):
		return biller.ResultAborted
	case env.Code != CodeSuccess:
		return biller.ResultDeclined
	case env.Response.Has(FieldQRCode) || env.Response.Has(FieldEncryptText):
		return biller.ResultPending
	default:
		return biller.ResultApproved
	}
}

func (r *Response) BillerTransactionID() string {
	return r.response.FirstOf(FieldTransactionID, FieldPaymentID)
}

func (r *Response) QRCode() string {
	return r.response.Get(FieldQRCode)
}

func (r *Response) EncryptText() string {
	return r.response.Get(FieldEncryptText)
}

func (r *Response) ShouldReturn400() bool {
	return clientErrorCodes.Contains(r.Code())
}
