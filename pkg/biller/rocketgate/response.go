// Package rocketgate normalizes Rocketgate gateway payloads.
//
// A payload is the JSON envelope produced by the network client:
//
//	{"code": "0", "reason": "0", "request": {...}, "response": {...}}
//
// where request/response mirror the gateway's own parameter names.
package rocketgate

import (
	"time"

	"paygate/pkg/biller"
)

// Response codes.
const (
	CodeSuccess = "0"

	// ReasonThreeDSAuthRequired asks for a 3DS 1.x authentication.
	ReasonThreeDSAuthRequired = "202"
	// ReasonThreeDSRejected means the issuer or gateway rejected or bypassed
	// 3DS; the charge may be retried without it.
	ReasonThreeDSRejected = "223"
	// ReasonThreeDS2Initiation asks for 3DS2 device data collection.
	ReasonThreeDS2Initiation = "225"
	// ReasonSCARequired is a soft decline under PSD2 strong customer authentication.
	ReasonSCARequired = "228"

	CircuitBreakerOpenCode    = "9999"
	CircuitBreakerOpenMessage = "Circuit breaker open"
)

// Response field names.
const (
	FieldGUID                      = "guidNo"
	FieldCardHash                  = "cardHash"
	FieldMerchantInvoiceID         = "merchantInvoiceID"
	FieldPaymentLinkURL            = "PAYMENT_LINK_URL"
	FieldThreeDSVersion            = "_3DSECURE_VERSION"
	FieldAcsURL                    = "acsURL"
	FieldPaReq                     = "PAREQ"
	FieldDeviceCollectionJWT       = "_3DSECURE_DEVICE_COLLECTION_JWT"
	FieldDeviceCollectionURL       = "_3DSECURE_DEVICE_COLLECTION_URL"
	FieldStepUpURL                 = "_3DSECURE_STEP_UP_URL"
	FieldStepUpJWT                 = "_3DSECURE_STEP_UP_JWT"
	FieldUse3DSecure               = "use3DSecure"
	FieldThreeDSReferenceID        = "_3DSECURE_DF_REFERENCE_ID"
	FieldThreeDSRedirectURL        = "_3DSECURE_REDIRECT_URL"
	FieldThreeDSLookupRequest      = "_3DSECURE_LOOKUP_REQUEST"
	FieldThreeDSChallengePreferred = "_3DSECURE_CHALLENGE_PREFERENCE"
)

var (
	// abortedReasons are communication and gateway-internal failures.
	abortedReasons = biller.NewCodeSet(
		"301", "302", "303", "304", "305", "306", "307", "308", "309", "310",
		"311", "312", "313", "314", "315", "321", "323", "325",
	)

	// threeDSPendingReasons keep a 3DS charge pending instead of declining it.
	threeDSPendingReasons = biller.NewCodeSet(
		ReasonThreeDSAuthRequired,
		ReasonThreeDS2Initiation,
		ReasonSCARequired,
	)

	// invalidInputReasons are request-validation failures on the gateway side.
	invalidInputReasons = biller.NewCodeSet(
		"403", "404", "405", "406", "407", "408", "409", "410", "411", "412",
		"413", "414", "415", "416", "418", "419", "420", "438",
	)

	// request fields whose presence means 3DS was asked for.
	threeDSRequestFields = []string{
		FieldThreeDSReferenceID,
		FieldThreeDSRedirectURL,
		FieldThreeDSLookupRequest,
		FieldThreeDSChallengePreferred,
	}
)

// Response is a normalized Rocketgate response.
type Response struct {
	biller.Base

	request  biller.Fieldset
	response biller.Fieldset
}

var _ biller.ThreeDSClassifier = (*Response)(nil)

// Normalize decodes a Rocketgate payload.
func Normalize(payload string, requestDate, responseDate time.Time) (*Response, error) {
	env, err := biller.DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}

	result := classify(env)

	var request *string
	if env.RawRequest != "" {
		request = biller.StringPtr(env.RawRequest)
	}

	return &Response{
		Base: biller.NewBase(biller.Fields{
			Biller:          biller.Rocketgate,
			Result:          result,
			Code:            env.Code,
			Reason:          env.Reason,
			RequestPayload:  request,
			ResponsePayload: biller.StringPtr(payload),
			RequestDate:     requestDate,
			ResponseDate:    responseDate,
		}),
		request:  env.Request,
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

// NewAbortedResponse builds the fallback response used when the gateway could
// not be reached. A nil err yields the circuit-breaker-open code.
func NewAbortedResponse(err error) *Response {
	return &Response{
		Base:     biller.NewBase(biller.AbortedFields(biller.Rocketgate, CircuitBreakerOpenCode, CircuitBreakerOpenMessage, err)),
		request:  biller.Fieldset{},
		response: biller.Fieldset{},
	}
}

func classify(env *biller.Envelope) biller.Result {
	switch {
	case abortedReasons.Contains(env.Reason):
		return biller.ResultAborted
	case env.Code == CodeSuccess && env.Response.Has(FieldPaymentLinkURL):
		return biller.ResultPending
	case env.Code == CodeSuccess:
		return biller.ResultApproved
	case requestedThreeDS(env.Request) && threeDSPendingReasons.Contains(env.Reason):
		return biller.ResultPending
	default:
		return biller.ResultDeclined
	}
}

func requestedThreeDS(request biller.Fieldset) bool {
	switch request.Get(FieldUse3DSecure) {
	case "TRUE", "true", "1":
		return true
	}
	for _, f := range threeDSRequestFields {
		if request.Has(f) {
			return true
		}
	}
	return false
}

// BillerTransactionID returns the gateway GUID.
func (r *Response) BillerTransactionID() string {
	return r.response.Get(FieldGUID)
}

// CardHash returns the gateway card hash, used for later existing-card charges.
func (r *Response) CardHash() string {
	return r.response.Get(FieldCardHash)
}

// MerchantInvoiceID echoes the invoice id the charge was sent with.
func (r *Response) MerchantInvoiceID() string {
	return r.response.Get(FieldMerchantInvoiceID)
}

func (r *Response) ShouldReturn400() bool {
	return invalidInputReasons.Contains(r.Reason())
}

// UsedThreeDS reports whether the originating request asked for 3DS.
func (r *Response) UsedThreeDS() bool {
	return requestedThreeDS(r.request)
}

func (r *Response) ShouldRetryWithoutThreeD() bool {
	return r.Reason() == ReasonThreeDSRejected
}

// ShouldRetryWithThreeD is true for a plain charge the gateway wants
// authenticated. A charge that already asked for 3DS is pending instead.
func (r *Response) ShouldRetryWithThreeD() bool {
	return !r.UsedThreeDS() && threeDSPendingReasons.Contains(r.Reason())
}

func (r *Response) IsSCARequired() bool { return r.Reason() == ReasonSCARequired }

// ThreeDSVersion derives the protocol version the gateway negotiated:
// the explicit version field wins, then 3DS1 ACS data, then any 3DS2 device
// collection or step-up data.
func (r *Response) ThreeDSVersion() (int, bool) {
	if v, ok := biller.MajorVersion(r.response.Get(FieldThreeDSVersion)); ok {
		return v, true
	}
	if r.response.Has(FieldAcsURL) && r.response.Has(FieldPaReq) {
		return 1, true
	}
	if r.response.Has(FieldDeviceCollectionJWT) || r.response.Has(FieldDeviceCollectionURL) {
		return 2, true
	}
	if (r.response.Has(FieldStepUpURL) || r.response.Has(FieldStepUpJWT)) && r.response.Has(FieldGUID) {
		return 2, true
	}
	return 0, false
}

// IsFrictionless reports a 3DS2 approval that needed no challenge.
func (r *Response) IsFrictionless() bool {
	if !r.IsApproved() {
		return false
	}
	v, ok := r.ThreeDSVersion()
	if !ok || v != 2 {
		return false
	}
	return !r.response.Has(FieldStepUpURL) && !r.response.Has(FieldStepUpJWT)
}

func (r *Response) PaymentLinkURL() string      { return r.response.Get(FieldPaymentLinkURL) }
func (r *Response) AcsURL() string              { return r.response.Get(FieldAcsURL) }
func (r *Response) PaReq() string               { return r.response.Get(FieldPaReq) }
func (r *Response) DeviceCollectionJWT() string { return r.response.Get(FieldDeviceCollectionJWT) }
func (r *Response) DeviceCollectionURL() string { return r.response.Get(FieldDeviceCollectionURL) }
func (r *Response) StepUpURL() string           { return r.response.Get(FieldStepUpURL) }
func (r *Response) StepUpJWT() string           { return r.response.Get(FieldStepUpJWT) }

// ExtractGUID reads the gateway GUID out of a stored response payload.
func ExtractGUID(payload string) (string, bool) {
	return extract(payload, FieldGUID)
}

// ExtractCardHash reads the card hash out of a stored response payload.
func ExtractCardHash(payload string) (string, bool) {
	return extract(payload, FieldCardHash)
}

func extract(payload, field string) (string, bool) {
	env, err := biller.DecodeEnvelope(payload)
	if err != nil {
		return "", false
	}
	v := env.Response.Get(field)
	return v, v != ""
}
