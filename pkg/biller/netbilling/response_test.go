package netbilling

import (
	"errors"
	"testing"
	"time"

	"paygate/pkg/biller"
)

func TestNormalize_Result(t *testing.T) {
	tests := []struct {
		code string
		want biller.Result
	}{
		{"0", biller.ResultApproved},
		{"9000", biller.ResultAborted},
		{"105", biller.ResultDeclined},
		{"1", biller.ResultDeclined},
		{"", biller.ResultDeclined},
	}

	for _, tt := range tests {
		t.Run("code_"+tt.code, func(t *testing.T) {
			r, err := Normalize(`{"code":"`+tt.code+`","reason":"x","response":{"trans_id":"114"}}`, time.Now(), time.Now())
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if r.Result() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, r.Result())
			}
		})
	}
}

func TestResponse_Fields(t *testing.T) {
	r, err := Normalize(`{"code":105,"response":{"trans_id":"114","recurring_id":"R1","auth_msg":"NSF","auth_code":"A"}}`, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if !r.IsNsfTransaction() {
		t.Error("Expected an NSF decline")
	}
	if r.Reason() != "NSF" {
		t.Errorf("Expected reason to fall back to auth_msg, got %q", r.Reason())
	}
	if r.BillerTransactionID() != "114" || r.RecurringID() != "R1" || r.AuthCode() != "A" {
		t.Errorf("Unexpected fields: %s %s %s", r.BillerTransactionID(), r.RecurringID(), r.AuthCode())
	}
	if r.RequestPayload() != nil {
		t.Error("Expected no request payload")
	}
}

func TestResponse_ShouldReturn400(t *testing.T) {
	for _, code := range []string{"6", "7", "8", "11", "303"} {
		r, _ := Normalize(`{"code":"`+code+`"}`, time.Now(), time.Now())
		if !r.ShouldReturn400() {
			t.Errorf("Expected %s to map to a 400", code)
		}
	}
	r, _ := Normalize(`{"code":"105"}`, time.Now(), time.Now())
	if r.ShouldReturn400() {
		t.Error("NSF must not map to a 400")
	}
}

func TestNewAbortedResponse(t *testing.T) {
	r := NewAbortedResponse(nil)
	if !r.IsAborted() || r.Code() != "9000" || r.Reason() != CircuitBreakerOpenMessage {
		t.Errorf("Unexpected fallback: %s %s %s", r.Result(), r.Code(), r.Reason())
	}

	r = NewAbortedResponse(errors.New("connection reset"))
	if r.Reason() != "connection reset" {
		t.Errorf("Expected error text as reason, got %q", r.Reason())
	}
}
