// Package observability carries business-intelligence events (3DS retries,
// lookups, frictionless flows, declines) out of the request path. Writing an
// event never changes a transaction outcome.
package observability

import (
	"context"
	"errors"
	"sync"
	"time"
)

// EventType names a BI event.
type EventType string

const (
	EventThreeDSRetry        EventType = "3ds_retry"
	EventThreeDSLookup       EventType = "3ds_lookup"
	EventThreeDSFrictionless EventType = "3ds_frictionless"
	EventTransactionDeclined EventType = "transaction_declined"
)

// Event is one BI record.
type Event struct {
	Type          EventType         `json:"type"`
	TransactionID string            `json:"transactionId"`
	Biller        string            `json:"biller"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ EventType, transactionID, biller string, attrs map[string]string) Event {
	return Event{
		Type:          typ,
		TransactionID: transactionID,
		Biller:        biller,
		Attributes:    attrs,
		OccurredAt:    time.Now().UTC(),
	}
}

// Sink accepts events from business code.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Writer delivers events to a backend. AsyncSink calls it from its workers.
type Writer interface {
	Name() string
	Write(ctx context.Context, e Event) error
}

// Errors returned by sinks.
var (
	// ErrQueueFull is returned when the event queue is full and MaxWaitTime exceeded
	ErrQueueFull = errors.New("observability: queue full, event dropped")

	// ErrSinkClosed is returned when writing to a closed sink
	ErrSinkClosed = errors.New("observability: sink is closed")

	// ErrFlushTimeout is returned when Flush() times out waiting for the queue to drain
	ErrFlushTimeout = errors.New("observability: flush timeout exceeded")
)

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Write(context.Context, Event) error { return nil }

// Recorder keeps events in memory. It satisfies both Sink and Writer.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Write(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(typ EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
