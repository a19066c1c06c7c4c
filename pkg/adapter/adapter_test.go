package adapter

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"paygate/pkg/biller"
	"paygate/pkg/biller/netbilling"
	"paygate/pkg/biller/rocketgate"
	"paygate/pkg/resilience"
	"paygate/pkg/threeds"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeClient records the last operation and answers with a fixed payload.
type fakeClient struct {
	payload string
	err     error
	calls   atomic.Int32
	lastOp  atomic.Value
	// completion holds the last CompleteRequest sent.
	completion atomic.Value
}

func (f *fakeClient) answer(op Operation) (string, error) {
	f.calls.Add(1)
	f.lastOp.Store(op)
	if f.err != nil {
		return "", f.err
	}
	return f.payload, nil
}

func (f *fakeClient) op() Operation {
	op, _ := f.lastOp.Load().(Operation)
	return op
}

func (f *fakeClient) ChargeNewCard(context.Context, *transaction.ChargeTransaction) (string, error) {
	return f.answer(OpChargeNewCard)
}

func (f *fakeClient) ChargeExistingCard(context.Context, *transaction.ChargeTransaction) (string, error) {
	return f.answer(OpChargeExistingCard)
}

func (f *fakeClient) UpdateRebill(context.Context, *transaction.RebillUpdateTransaction) (string, error) {
	return f.answer(OpUpdateRebill)
}

func (f *fakeClient) SuspendRebill(context.Context, *transaction.RebillUpdateTransaction) (string, error) {
	return f.answer(OpSuspendRebill)
}

func (f *fakeClient) CancelRebill(context.Context, *transaction.RebillUpdateTransaction) (string, error) {
	return f.answer(OpCancelRebill)
}

func (f *fakeClient) Lookup3DS2(context.Context, *transaction.ChargeTransaction, threeds.LookupRequest) (string, error) {
	return f.answer(OpLookupThreeDS2)
}

func (f *fakeClient) Complete3DS(_ context.Context, _ *transaction.ChargeTransaction, req CompleteRequest) (string, error) {
	f.completion.Store(req)
	return f.answer(OpCompleteThreeDS)
}

func (f *fakeClient) SimplifiedComplete3DS(context.Context, *transaction.ChargeTransaction, CompleteRequest) (string, error) {
	return f.answer(OpSimplifiedCompleteThreeDS)
}

func (f *fakeClient) UploadCard(context.Context, *transaction.ChargeTransaction) (string, error) {
	return f.answer(OpCardUpload)
}

func testRegistry() *resilience.Registry {
	return resilience.NewRegistry(resilience.Config{
		Timeout: time.Second,
		CircuitBreakerConfig: resilience.CircuitBreakerConfig{
			MaxRequests: 1,
			Timeout:     time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	})
}

func chargeTx(t *testing.T, billerName string, payment transaction.PaymentInformation) *transaction.ChargeTransaction {
	t.Helper()
	tx, err := transaction.NewChargeTransaction(transaction.ChargeParams{
		SiteID:      uuid.New(),
		BillerName:  billerName,
		PaymentType: transaction.PaymentTypeCC,
		Payment:     payment,
		Charge:      transaction.ChargeInformation{Amount: decimal.NewFromInt(20), Currency: "EUR"},
	})
	if err != nil {
		t.Fatalf("NewChargeTransaction failed: %v", err)
	}
	return tx
}

func rebillTx(t *testing.T, billerName string, op transaction.RebillOperation) *transaction.RebillUpdateTransaction {
	t.Helper()
	tx, err := transaction.NewRebillUpdateTransaction(transaction.RebillUpdateParams{
		PreviousTransactionID: uuid.New(),
		BillerName:            billerName,
		Operation:             op,
		Rebill:                &transaction.Rebill{Amount: decimal.NewFromInt(20), Frequency: 30, Start: 30},
	})
	if err != nil {
		t.Fatalf("NewRebillUpdateTransaction failed: %v", err)
	}
	return tx
}

func card() transaction.NewCreditCard {
	return transaction.NewCreditCard{Number: "5555555555554444", ExpirationMonth: 3, ExpirationYear: 2029}
}

func template() transaction.ExistingCreditCard {
	return transaction.ExistingCreditCard{CardHash: "m:abc"}
}

func circuitNames(reg *resilience.Registry) map[string]bool {
	names := make(map[string]bool)
	for _, s := range reg.States() {
		names[s.Name] = true
	}
	return names
}

func TestRocketgate_ChargeRoutesByPayment(t *testing.T) {
	client := &fakeClient{payload: `{"code":"0","reason":"0","response":{"guidNo":"G-1"}}`}
	reg := testRegistry()
	a := NewRocketgate(client, reg)

	resp := a.Charge(context.Background(), chargeTx(t, biller.Rocketgate, card()))
	if resp.Result() != biller.ResultApproved {
		t.Fatalf("Expected approved, got %s", resp.Result())
	}
	if client.op() != OpChargeNewCard {
		t.Errorf("Expected %s, got %s", OpChargeNewCard, client.op())
	}
	if resp.RequestDate().After(resp.ResponseDate()) {
		t.Error("Request date must not be after response date")
	}

	a.Charge(context.Background(), chargeTx(t, biller.Rocketgate, template()))
	if client.op() != OpChargeExistingCard {
		t.Errorf("Expected %s, got %s", OpChargeExistingCard, client.op())
	}

	names := circuitNames(reg)
	for _, want := range []string{"rocketgate.charge-new-card", "rocketgate.charge-existing-card"} {
		if !names[want] {
			t.Errorf("Expected circuit %s, got %v", want, names)
		}
	}
}

func TestRocketgate_TransportErrorIsAborted(t *testing.T) {
	client := &fakeClient{err: errors.New("connection reset by peer")}
	a := NewRocketgate(client, testRegistry())

	resp := a.Charge(context.Background(), chargeTx(t, biller.Rocketgate, card()))

	if resp.Result() != biller.ResultAborted {
		t.Fatalf("Expected aborted, got %s", resp.Result())
	}
	if resp.Code() != rocketgate.CircuitBreakerOpenCode {
		t.Errorf("Expected code %s, got %s", rocketgate.CircuitBreakerOpenCode, resp.Code())
	}
	if !strings.Contains(resp.Reason(), "connection reset") {
		t.Errorf("Expected the transport error as reason, got %q", resp.Reason())
	}
}

func TestRocketgate_MalformedPayloadIsAborted(t *testing.T) {
	raw := `<html>502 Bad Gateway</html>`
	client := &fakeClient{payload: raw}
	a := NewRocketgate(client, testRegistry())
	tx := chargeTx(t, biller.Rocketgate, card())

	resp := a.Charge(context.Background(), tx)

	if resp.Result() != biller.ResultAborted || resp.Code() != rocketgate.CircuitBreakerOpenCode {
		t.Errorf("Expected aborted fallback, got %s %s", resp.Result(), resp.Code())
	}
	if got := resp.ResponsePayload(); got == nil || *got != raw {
		t.Fatalf("Expected the raw body as response payload, got %v", got)
	}
	if !strings.Contains(resp.Reason(), biller.ErrMalformedPayload.Error()) {
		t.Errorf("Expected a malformed payload reason, got %q", resp.Reason())
	}

	if err := tx.Record(resp); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	interactions := tx.Interactions()
	if len(interactions) != 1 || interactions[0].Payload != raw {
		t.Errorf("Expected the raw body in the ledger, got %+v", interactions)
	}
	if tx.Status() != transaction.StatusAborted {
		t.Errorf("Expected aborted transaction, got %s", tx.Status())
	}
}

func TestRocketgate_ThreeDSOperations(t *testing.T) {
	client := &fakeClient{payload: `{"code":"0","reason":"0"}`}
	a := NewRocketgate(client, testRegistry())
	tx := chargeTx(t, biller.Rocketgate, card())
	ctx := context.Background()

	a.Lookup(ctx, tx, threeds.LookupRequest{DeviceFingerprintID: "df", ReturnURL: "https://r.example"})
	if client.op() != OpLookupThreeDS2 {
		t.Errorf("Expected lookup, got %s", client.op())
	}

	a.CompleteThreeDS(ctx, tx, CompleteRequest{PaRes: "pares"})
	if client.op() != OpCompleteThreeDS {
		t.Errorf("Expected complete, got %s", client.op())
	}

	a.CompleteThreeDS(ctx, tx, CompleteRequest{CRes: "cres", Simplified: true})
	if client.op() != OpSimplifiedCompleteThreeDS {
		t.Errorf("Expected simplified complete, got %s", client.op())
	}

	a.UploadCard(ctx, tx)
	if client.op() != OpCardUpload {
		t.Errorf("Expected card upload, got %s", client.op())
	}
}

func TestRocketgate_CompleteThreeDSReadsGUIDFromLedger(t *testing.T) {
	client := &fakeClient{payload: `{"code":"0","reason":"0","response":{"guidNo":"G-2"}}`}
	a := NewRocketgate(client, testRegistry())
	tx := chargeTx(t, biller.Rocketgate, card())
	if err := tx.AddInteraction(transaction.InteractionResponse, `{"code":"2","reason":"202","response":{"guidNo":"G-1"}}`, time.Now()); err != nil {
		t.Fatalf("AddInteraction failed: %v", err)
	}

	a.CompleteThreeDS(context.Background(), tx, CompleteRequest{PaRes: "pares"})

	req, _ := client.completion.Load().(CompleteRequest)
	if req.Reference != "G-1" || req.PaRes != "pares" {
		t.Errorf("Expected the pending guid to be sent, got %+v", req)
	}

	a.CompleteThreeDS(context.Background(), tx, CompleteRequest{PaRes: "pares", Reference: "G-explicit"})

	req, _ = client.completion.Load().(CompleteRequest)
	if req.Reference != "G-explicit" {
		t.Errorf("Expected the given reference to win, got %q", req.Reference)
	}
}

func TestRocketgate_RebillOperations(t *testing.T) {
	client := &fakeClient{payload: `{"code":"0","reason":"0"}`}
	a := NewRocketgate(client, testRegistry())

	tests := []struct {
		op   transaction.RebillOperation
		want Operation
	}{
		{transaction.RebillUpdate, OpUpdateRebill},
		{transaction.RebillSuspend, OpSuspendRebill},
		{transaction.RebillCancel, OpCancelRebill},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			resp, err := a.UpdateRebill(context.Background(), rebillTx(t, biller.Rocketgate, tt.op))
			if err != nil {
				t.Fatalf("UpdateRebill failed: %v", err)
			}
			if resp.Result() != biller.ResultApproved {
				t.Errorf("Expected approved, got %s", resp.Result())
			}
			if client.op() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, client.op())
			}
		})
	}
}

func TestNetbilling_SuspendIsUnsupported(t *testing.T) {
	client := &fakeClient{payload: `{"code":"0"}`}
	a := NewNetbilling(client, testRegistry())

	_, err := a.UpdateRebill(context.Background(), rebillTx(t, biller.Netbilling, transaction.RebillSuspend))

	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("Expected ErrUnsupportedOperation, got %v", err)
	}
	if client.calls.Load() != 0 {
		t.Error("No call must be made for an unsupported operation")
	}
}

func TestEpoch_TemplateChargeIsAbortedWithoutCall(t *testing.T) {
	client := &fakeClient{payload: `{"status":"approved"}`}
	a := NewEpoch(client, testRegistry())

	resp := a.Charge(context.Background(), chargeTx(t, biller.Epoch, template()))

	if resp.Result() != biller.ResultAborted {
		t.Errorf("Expected aborted, got %s", resp.Result())
	}
	if client.calls.Load() != 0 {
		t.Error("No call must be made for an unsupported operation")
	}

	if _, err := a.UpdateRebill(context.Background(), rebillTx(t, biller.Epoch, transaction.RebillUpdate)); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("Expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestSet_UnavailableClientsDegradeToAborted(t *testing.T) {
	set := NewSet(testRegistry(), Clients{})

	if got := set.Billers(); len(got) != 6 {
		t.Fatalf("Expected 6 billers, got %v", got)
	}

	a, err := set.Get(biller.Netbilling)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp := a.Charge(context.Background(), chargeTx(t, biller.Netbilling, card()))

	if resp.Result() != biller.ResultAborted || resp.Code() != netbilling.CircuitBreakerOpenCode {
		t.Errorf("Expected aborted %s, got %s %s", netbilling.CircuitBreakerOpenCode, resp.Result(), resp.Code())
	}

	if _, ok := set.Looker(biller.Rocketgate); !ok {
		t.Error("Rocketgate must expose a 3DS2 lookup")
	}
	if _, ok := set.Looker(biller.Pumapay); ok {
		t.Error("Pumapay has no 3DS2 lookup")
	}
	if _, err := set.Get("acme"); err == nil {
		t.Error("Expected an error for an unknown biller")
	}
}

func TestSet_UsesProvidedClients(t *testing.T) {
	client := &fakeClient{payload: `{"code":"0","reason":"0"}`}
	set := NewSet(testRegistry(), Clients{Rocketgate: client})

	a, _ := set.Get(biller.Rocketgate)
	if resp := a.Charge(context.Background(), chargeTx(t, biller.Rocketgate, card())); resp.Result() != biller.ResultApproved {
		t.Errorf("Expected approved, got %s", resp.Result())
	}
}
