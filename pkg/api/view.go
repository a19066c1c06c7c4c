package api

import (
	"net/http"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/events"
	"paygate/pkg/transaction"
)

// StatusCodeFor maps a biller outcome to the HTTP status returned to the
// caller. Aborted calls and biller-reported request errors are 400s;
// approvals, declines and pending challenges are all 201s.
func StatusCodeFor(resp biller.Response) int {
	if resp.Result() == biller.ResultAborted || resp.ShouldReturn400() {
		return http.StatusBadRequest
	}
	return http.StatusCreated
}

// Error groups reported in ErrorClassification.
const (
	GroupAborted        = "aborted"
	GroupInvalidRequest = "invalid_request"

	ErrorTypeBillerUnavailable = "biller_unavailable"
	ErrorTypeBillerRejected    = "biller_rejected"

	ActionRetryLater = "retry_later"
	ActionFixRequest = "fix_request"
)

// ErrorClassification explains a 400 outcome to the caller.
type ErrorClassification struct {
	GroupDecline      string          `json:"groupDecline"`
	ErrorType         string          `json:"errorType"`
	GroupMessage      string          `json:"groupMessage"`
	RecommendedAction string          `json:"recommendedAction"`
	MappingCriteria   MappingCriteria `json:"mappingCriteria"`
}

// MappingCriteria names the biller answer a classification was derived from.
type MappingCriteria struct {
	BillerName string `json:"billerName"`
	Code       string `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ClassifyError returns the classification of a response StatusCodeFor maps
// to 400, and nil for every other response.
func ClassifyError(resp biller.Response) *ErrorClassification {
	if StatusCodeFor(resp) != http.StatusBadRequest {
		return nil
	}

	c := &ErrorClassification{
		GroupDecline:      GroupInvalidRequest,
		ErrorType:         ErrorTypeBillerRejected,
		GroupMessage:      "the biller rejected the request",
		RecommendedAction: ActionFixRequest,
		MappingCriteria: MappingCriteria{
			BillerName: resp.Biller(),
			Code:       resp.Code(),
			Reason:     resp.Reason(),
		},
	}
	if resp.Result() == biller.ResultAborted {
		c.GroupDecline = GroupAborted
		c.ErrorType = ErrorTypeBillerUnavailable
		c.GroupMessage = "the biller could not be reached"
		c.RecommendedAction = ActionRetryLater
	}
	return c
}

// OutcomeView is the body returned after a biller call.
type OutcomeView struct {
	TransactionID       string               `json:"transactionId"`
	Result              string               `json:"result"`
	Code                string               `json:"code,omitempty"`
	Reason              string               `json:"reason,omitempty"`
	BillerTransactionID string               `json:"billerTransactionId,omitempty"`
	ErrorClassification *ErrorClassification `json:"errorClassification,omitempty"`
}

// NewOutcomeView builds the body for resp.
func NewOutcomeView(id string, resp biller.Response) OutcomeView {
	return OutcomeView{
		TransactionID:       id,
		Result:              resp.Result().String(),
		Code:                resp.Code(),
		Reason:              resp.Reason(),
		BillerTransactionID: resp.BillerTransactionID(),
		ErrorClassification: ClassifyError(resp),
	}
}

// InteractionView lists a ledger entry without its payload.
type InteractionView struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// TransactionView is the obfuscated representation of a stored transaction.
// Details carries the creation event, which holds no card number, CVV or
// biller secret.
type TransactionView struct {
	ID             string                          `json:"transactionId"`
	Kind           string                          `json:"transactionType"`
	Status         string                          `json:"status"`
	BillerName     string                          `json:"billerName"`
	ThreedsVersion *int                            `json:"threedsVersion,omitempty"`
	CreatedAt      time.Time                       `json:"createdAt"`
	UpdatedAt      time.Time                       `json:"updatedAt"`
	Interactions   []InteractionView               `json:"interactions"`
	Details        *events.TransactionCreatedEvent `json:"details"`
}

func NewTransactionView(builder *events.Builder, tx transaction.Aggregate) (*TransactionView, error) {
	details, err := builder.Created(tx)
	if err != nil {
		return nil, err
	}

	view := &TransactionView{
		ID:           tx.ID().String(),
		Kind:         string(tx.Kind()),
		Status:       tx.Status().String(),
		BillerName:   tx.BillerName(),
		CreatedAt:    tx.CreatedAt(),
		UpdatedAt:    tx.UpdatedAt(),
		Interactions: make([]InteractionView, 0, len(tx.Interactions())),
		Details:      details,
	}
	if v, ok := tx.ThreedsVersion(); ok {
		view.ThreedsVersion = &v
	}
	for _, in := range tx.Interactions() {
		view.Interactions = append(view.Interactions, InteractionView{Type: string(in.Type), CreatedAt: in.CreatedAt})
	}
	return view, nil
}
