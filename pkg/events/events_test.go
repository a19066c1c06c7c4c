package events

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/biller/rocketgate"
	"paygate/pkg/redisclient"
	"paygate/pkg/settings"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newCharge(t *testing.T) *transaction.ChargeTransaction {
	t.Helper()
	tx, err := transaction.NewChargeTransaction(transaction.ChargeParams{
		SiteID:      uuid.New(),
		BillerName:  biller.Rocketgate,
		Settings:    settings.Rocketgate{MerchantID: "m-1", MerchantPassword: "hunter2", SharedSecret: "s3cret"},
		PaymentType: transaction.PaymentTypeCC,
		Payment: transaction.NewCreditCard{
			Number:          "4111111111111111",
			CVV:             "987",
			ExpirationMonth: 7,
			ExpirationYear:  2030,
		},
		Charge: transaction.ChargeInformation{
			Amount:   decimal.RequireFromString("9.5"),
			Currency: "USD",
			Rebill:   &transaction.Rebill{Amount: decimal.RequireFromString("19.99"), Frequency: 30, Start: 3},
		},
	})
	if err != nil {
		t.Fatalf("NewChargeTransaction failed: %v", err)
	}
	return tx
}

func TestBuilder_Created(t *testing.T) {
	tx := newCharge(t)
	e, err := NewBuilder(clock).Created(tx)
	if err != nil {
		t.Fatalf("Created failed: %v", err)
	}

	if e.EventType() != TypeTransactionCreated || e.AggregateID() != tx.ID().String() {
		t.Errorf("Unexpected header: %+v", e.Header)
	}
	if !e.OccurredOn.Equal(fixedNow) {
		t.Errorf("Expected the builder clock, got %v", e.OccurredOn)
	}
	if e.Amount != "9.50" || e.Currency != "USD" {
		t.Errorf("Unexpected amount: %s %s", e.Amount, e.Currency)
	}
	if e.Rebill == nil || e.Rebill.Amount != "19.99" || e.Rebill.Frequency != 30 {
		t.Errorf("Unexpected rebill: %+v", e.Rebill)
	}
	if e.Card == nil || e.Card.First6 != "411111" || e.Card.Last4 != "1111" || !e.Card.CVV2Check {
		t.Errorf("Unexpected card: %+v", e.Card)
	}
	if e.BillerSettings["merchantPassword"] != settings.ObfuscationMarker {
		t.Errorf("Expected merchantPassword obfuscated, got %v", e.BillerSettings["merchantPassword"])
	}
	if e.BillerSettings["merchantId"] != "m-1" {
		t.Errorf("Non-secret settings must be kept, got %v", e.BillerSettings["merchantId"])
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, secret := range []string{"4111111111111111", "hunter2", "s3cret"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("Event leaks %q: %s", secret, data)
		}
	}
}

func TestBuilder_TerminalEvents(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType Type
	}{
		{"approved", `{"code":"0","reason":"0","response":{"guidNo":"G-42"}}`, TypeTransactionApproved},
		{"declined", `{"code":"1","reason":"105"}`, TypeTransactionDeclined},
		{"aborted", `{"code":"3","reason":"301"}`, TypeTransactionAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newCharge(t)
			resp, err := rocketgate.Normalize(tt.payload, fixedNow, fixedNow)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if err := tx.Record(resp); err != nil {
				t.Fatalf("Record failed: %v", err)
			}

			e, ok, err := NewBuilder(clock).Build(tx, resp)
			if err != nil || !ok {
				t.Fatalf("Build failed: ok=%v err=%v", ok, err)
			}
			if e.EventType() != tt.wantType {
				t.Errorf("Expected %s, got %s", tt.wantType, e.EventType())
			}
		})
	}
}

func TestBuilder_TerminalEventsCarrySnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"approved", `{"code":"0","reason":"0","response":{"guidNo":"G-42"}}`},
		{"declined", `{"code":"2","reason":"201"}`},
		{"aborted", `{"code":"3","reason":"301"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newCharge(t)
			resp, err := rocketgate.Normalize(tt.payload, fixedNow, fixedNow)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if err := tx.Record(resp); err != nil {
				t.Fatalf("Record failed: %v", err)
			}

			e, _, err := NewBuilder(clock).Build(tx, resp)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			data, err := json.Marshal(e)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			for _, secret := range []string{"4111111111111111", "hunter2", "s3cret"} {
				if strings.Contains(string(data), secret) {
					t.Errorf("Event leaks %q: %s", secret, data)
				}
			}

			var doc struct {
				Status         string         `json:"status"`
				PaymentType    string         `json:"paymentType"`
				Card           *Card          `json:"card"`
				BillerSettings map[string]any `json:"billerChargeSettings"`
				CreatedAt      time.Time      `json:"createdAt"`
				UpdatedAt      time.Time      `json:"updatedAt"`
			}
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if doc.Status != tt.name {
				t.Errorf("Expected status %s, got %s", tt.name, doc.Status)
			}
			if doc.BillerSettings["merchantPassword"] != settings.ObfuscationMarker {
				t.Errorf("Expected obfuscated settings, got %v", doc.BillerSettings)
			}
			if doc.PaymentType != transaction.PaymentTypeCC {
				t.Errorf("Expected payment type cc, got %q", doc.PaymentType)
			}
			if doc.Card == nil || doc.Card.First6 != "411111" || doc.Card.Last4 != "1111" || doc.Card.ExpirationYear != 2030 || !doc.Card.CVV2Check {
				t.Errorf("Unexpected card: %+v", doc.Card)
			}
			if !doc.CreatedAt.Equal(tx.CreatedAt()) || !doc.UpdatedAt.Equal(tx.UpdatedAt()) {
				t.Errorf("Expected transaction timestamps, got %v / %v", doc.CreatedAt, doc.UpdatedAt)
			}
		})
	}
}

func TestBuilder_ReadsIdentifiersFromLedger(t *testing.T) {
	tx := newCharge(t)
	pending, err := rocketgate.Normalize(`{"code":"2","reason":"202","request":{"use3DSecure":"TRUE"},"response":{"guidNo":"G-7","cardHash":"H-7","acsURL":"https://acs","PAREQ":"pa"}}`, fixedNow, fixedNow)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if err := tx.Record(pending); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	aborted := rocketgate.NewAbortedResponse(nil)
	if err := tx.Record(aborted); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	e, ok, err := NewBuilder(clock).Build(tx, aborted)
	if err != nil || !ok {
		t.Fatalf("Build failed: ok=%v err=%v", ok, err)
	}
	abortedEvent, isAborted := e.(*TransactionAbortedEvent)
	if !isAborted {
		t.Fatalf("Expected *TransactionAbortedEvent, got %T", e)
	}
	if abortedEvent.BillerTransactionID != "G-7" {
		t.Errorf("Expected the guid of the pending charge, got %q", abortedEvent.BillerTransactionID)
	}
	if abortedEvent.Card == nil || abortedEvent.Card.CardHash != "H-7" {
		t.Errorf("Expected the card hash from the ledger, got %+v", abortedEvent.Card)
	}
	if abortedEvent.Code != rocketgate.CircuitBreakerOpenCode {
		t.Errorf("Expected the fallback code, got %s", abortedEvent.Code)
	}
}

func TestBuilder_ApprovedCarriesOutcome(t *testing.T) {
	tx := newCharge(t)
	resp, _ := rocketgate.Normalize(`{"code":"0","reason":"0","response":{"guidNo":"G-42"}}`, fixedNow, fixedNow)
	_ = tx.Record(resp)

	e, _, _ := NewBuilder(clock).Build(tx, resp)
	approved, ok := e.(*TransactionApprovedEvent)
	if !ok {
		t.Fatalf("Expected *TransactionApprovedEvent, got %T", e)
	}
	if approved.BillerTransactionID != "G-42" || approved.Status != "approved" {
		t.Errorf("Unexpected outcome: %+v", approved)
	}
	if approved.BillerSettings["sharedSecret"] != settings.ObfuscationMarker {
		t.Error("Expected sharedSecret obfuscated")
	}
}

func TestBuilder_PendingHasNoEvent(t *testing.T) {
	_, ok, err := NewBuilder(nil).Build(newCharge(t), nil)
	if err != nil || ok {
		t.Errorf("Expected no event for a pending transaction, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	e, _ := NewBuilder(clock).Created(newCharge(t))

	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := p.Types(); len(got) != 1 || got[0] != TypeTransactionCreated {
		t.Errorf("Unexpected published types: %v", got)
	}
}

func TestRedisPublisher(t *testing.T) {
	client, err := redisclient.New(redisclient.DefaultConfig())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	e, _ := NewBuilder(clock).Created(newCharge(t))
	p := NewRedisPublisher(client, "test:paygate:events")

	if err := p.Publish(context.Background(), e); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
}
