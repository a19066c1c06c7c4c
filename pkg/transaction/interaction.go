package transaction

import "time"

// InteractionType tells requests and responses apart in the ledger.
type InteractionType string

const (
	InteractionRequest  InteractionType = "request"
	InteractionResponse InteractionType = "response"
)

// BillerInteraction is one raw request or response exchanged with a biller.
// Entries are appended once and never modified or removed.
type BillerInteraction struct {
	Type      InteractionType `json:"type"`
	Payload   string          `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// IsRequest reports whether the entry is an outbound request.
func (b BillerInteraction) IsRequest() bool {
	return b.Type == InteractionRequest
}

// IsResponse reports whether the entry is an inbound response.
func (b BillerInteraction) IsResponse() bool {
	return b.Type == InteractionResponse
}
