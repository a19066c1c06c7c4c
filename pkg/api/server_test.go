package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"paygate/pkg/adapter"
	"paygate/pkg/biller"
	"paygate/pkg/biller/netbilling"
	"paygate/pkg/biller/rocketgate"
	promcollector "paygate/pkg/metrics/prometheus"
	"paygate/pkg/processing"
	memrepo "paygate/pkg/repository/memory"
	"paygate/pkg/repository/repositorytest"
	"paygate/pkg/resilience"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeCompleter returns a fixed response or error and counts calls.
type fakeCompleter struct {
	resp  biller.Response
	err   error
	calls atomic.Int32
	last  adapter.CompleteRequest
}

func (f *fakeCompleter) CompleteThreeDS(_ context.Context, _ uuid.UUID, req adapter.CompleteRequest) (biller.Response, error) {
	f.calls.Add(1)
	f.last = req
	return f.resp, f.err
}

func setupTestServer(t *testing.T, completer Completer) (*Server, *memrepo.Repository, *resilience.Registry) {
	t.Helper()
	repo := memrepo.New()
	registry := resilience.NewRegistry(resilience.DefaultConfig())
	server := NewServer(Dependencies{
		Transactions: repo,
		Circuits:     registry,
		Completer:    completer,
	}, DefaultServerConfig())
	return server, repo, registry
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestServer_Health(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := serve(server, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if response := decode(t, w); response["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", response["status"])
	}
}

func TestServer_Status(t *testing.T) {
	server, _, registry := setupTestServer(t, nil)
	registry.Command(resilience.Key{Biller: biller.Rocketgate, Operation: string(adapter.OpChargeNewCard)})

	w := serve(server, http.MethodGet, "/status", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	response := decode(t, w)
	if response["status"] != "running" {
		t.Errorf("Expected status running, got %v", response["status"])
	}
	if response["circuits"] != float64(1) || response["circuits_not_closed"] != float64(0) {
		t.Errorf("Unexpected circuit summary: %v / %v", response["circuits"], response["circuits_not_closed"])
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := serve(server, http.MethodPost, "/health", "")

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_Circuits(t *testing.T) {
	server, _, registry := setupTestServer(t, nil)
	registry.Command(resilience.Key{Biller: biller.Netbilling, Operation: string(adapter.OpCancelRebill)})
	registry.Command(resilience.Key{Biller: biller.Epoch, Operation: string(adapter.OpChargeNewCard)})

	w := serve(server, http.MethodGet, "/circuits", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response struct {
		Circuits []resilience.CircuitStatus `json:"circuits"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Circuits) != 2 {
		t.Fatalf("Expected 2 circuits, got %d", len(response.Circuits))
	}
	if response.Circuits[0].Name != "epoch."+string(adapter.OpChargeNewCard) {
		t.Errorf("Expected circuits sorted by name, got %s first", response.Circuits[0].Name)
	}
	if response.Circuits[1].State != "closed" {
		t.Errorf("Expected closed circuit, got %s", response.Circuits[1].State)
	}
}

func TestServer_Metrics(t *testing.T) {
	collector := promcollector.NewPrometheusCollector("paygate")
	reg := prometheus.NewRegistry()
	if err := collector.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	collector.RecordTransaction(biller.Netbilling, "charge", "approved")

	server := NewServer(Dependencies{Transactions: memrepo.New(), Gatherer: reg}, DefaultServerConfig())
	w := serve(server, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "paygate_transactions_total") {
		t.Errorf("Expected transactions counter in output, got:\n%s", w.Body.String())
	}
}

func TestServer_MetricsWithoutGatherer(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := serve(server, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "#") {
		t.Errorf("Expected a comment line, got %q", w.Body.String())
	}
}

func TestServer_Transaction(t *testing.T) {
	server, repo, _ := setupTestServer(t, nil)
	tx := repositorytest.NewCharge(t)
	if err := repo.Add(context.Background(), tx); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w := serve(server, http.MethodGet, "/transactions/"+tx.ID().String(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, secret := range []string{"4111111111111111", `"pw"`} {
		if strings.Contains(body, secret) {
			t.Errorf("View leaks %s: %s", secret, body)
		}
	}

	var view TransactionView
	if err := json.Unmarshal([]byte(body), &view); err != nil {
		t.Fatalf("Failed to decode view: %v", err)
	}
	if view.ID != tx.ID().String() || view.Status != "pending" || view.BillerName != biller.Netbilling {
		t.Errorf("Unexpected view: %+v", view)
	}
	if view.Details == nil || view.Details.Card == nil || view.Details.Card.Last4 != "1111" {
		t.Errorf("Expected masked card details, got %+v", view.Details)
	}
}

func TestServer_TransactionNotFound(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := serve(server, http.MethodGet, "/transactions/"+uuid.New().String(), "")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_TransactionInvalidID(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := serve(server, http.MethodGet, "/transactions/not-a-uuid", "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if response := decode(t, w); response["error"] != "invalid transaction id" {
		t.Errorf("Unexpected error message: %v", response["error"])
	}
}

func rocketgateResponse(t *testing.T, payload string) biller.Response {
	t.Helper()
	resp, err := rocketgate.Normalize(payload, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	return resp
}

func TestServer_CompleteThreeDS(t *testing.T) {
	completer := &fakeCompleter{resp: rocketgateResponse(t, `{"code":"0","reason":"0","response":{"guidNo":"G-1"}}`)}
	server, _, _ := setupTestServer(t, completer)
	id := uuid.New()

	w := serve(server, http.MethodPost, "/transactions/"+id.String()+"/3ds/complete", `{"cres":"abc"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	response := decode(t, w)
	if response["result"] != "approved" || response["transactionId"] != id.String() {
		t.Errorf("Unexpected response: %v", response)
	}
	if completer.last.CRes != "abc" {
		t.Errorf("Expected cres to reach the completer, got %+v", completer.last)
	}
}

func TestServer_CompleteThreeDS_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
		calls  int32
	}{
		{"not awaiting", processing.ErrNotAwaitingThreeDS, `{"pares":"p"}`, http.StatusConflict, 1},
		{"unsupported", adapter.ErrUnsupportedOperation, `{"pares":"p"}`, http.StatusUnprocessableEntity, 1},
		{"missing payload", nil, `{}`, http.StatusBadRequest, 0},
		{"invalid body", nil, `{`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{err: tt.err}
			server, _, _ := setupTestServer(t, completer)

			w := serve(server, http.MethodPost, "/transactions/"+uuid.New().String()+"/3ds/complete", tt.body)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if n := completer.calls.Load(); n != tt.calls {
				t.Errorf("Expected %d completer calls, got %d", tt.calls, n)
			}
		})
	}
}

func TestServer_CompleteThreeDS_NotConfigured(t *testing.T) {
	server, _, _ := setupTestServer(t, nil)

	w := serve(server, http.MethodPost, "/transactions/"+uuid.New().String()+"/3ds/complete", `{"cres":"c"}`)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("Expected status 501, got %d", w.Code)
	}
}

func TestStatusCodeFor(t *testing.T) {
	at := time.Now()
	netbillingResponse := func(payload string) biller.Response {
		resp, err := netbilling.Normalize(payload, at, at)
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		return resp
	}

	tests := []struct {
		name string
		resp biller.Response
		want int
	}{
		{"approved", netbillingResponse(`{"code":"0"}`), http.StatusCreated},
		{"declined", netbillingResponse(`{"code":"105"}`), http.StatusCreated},
		{"invalid request", netbillingResponse(`{"code":"6"}`), http.StatusBadRequest},
		{"aborted", netbilling.NewAbortedResponse(nil), http.StatusBadRequest},
		{"pending challenge", rocketgateResponse(t, `{"code":"2","reason":"202","request":{"use3DSecure":"TRUE"},"response":{"acsURL":"https://acs","PAREQ":"pa"}}`), http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCodeFor(tt.resp); got != tt.want {
				t.Errorf("StatusCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestServer_CompleteThreeDS_AbortedIsClassified(t *testing.T) {
	completer := &fakeCompleter{resp: rocketgate.NewAbortedResponse(nil)}
	server, _, _ := setupTestServer(t, completer)

	w := serve(server, http.MethodPost, "/transactions/"+uuid.New().String()+"/3ds/complete", `{"pares":"p"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	var view OutcomeView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	c := view.ErrorClassification
	if c == nil {
		t.Fatal("Expected an errorClassification block")
	}
	if c.GroupDecline != GroupAborted || c.RecommendedAction != ActionRetryLater {
		t.Errorf("Unexpected classification: %+v", c)
	}
	if c.MappingCriteria.BillerName != biller.Rocketgate || c.MappingCriteria.Code != rocketgate.CircuitBreakerOpenCode {
		t.Errorf("Unexpected mapping criteria: %+v", c.MappingCriteria)
	}
}

func TestClassifyError(t *testing.T) {
	at := time.Now()
	invalid, err := netbilling.Normalize(`{"code":"6","reason":"bad card"}`, at, at)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	declined, err := netbilling.Normalize(`{"code":"105"}`, at, at)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if c := ClassifyError(declined); c != nil {
		t.Errorf("Expected no classification for a 201 outcome, got %+v", c)
	}

	c := ClassifyError(invalid)
	if c == nil {
		t.Fatal("Expected a classification for a biller request error")
	}
	if c.GroupDecline != GroupInvalidRequest || c.ErrorType != ErrorTypeBillerRejected || c.RecommendedAction != ActionFixRequest {
		t.Errorf("Unexpected classification: %+v", c)
	}
	if c.MappingCriteria.BillerName != biller.Netbilling || c.MappingCriteria.Code != "6" {
		t.Errorf("Unexpected mapping criteria: %+v", c.MappingCriteria)
	}

	if c := ClassifyError(netbilling.NewAbortedResponse(nil)); c == nil || c.ErrorType != ErrorTypeBillerUnavailable {
		t.Errorf("Expected an unavailable classification, got %+v", c)
	}
}

func TestServer_StartStop(t *testing.T) {
	repo := memrepo.New()
	config := DefaultServerConfig()
	config.Address = "127.0.0.1:0"
	server := NewServer(Dependencies{Transactions: repo}, config)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	// Give it time to start
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		t.Errorf("Failed to stop server: %v", err)
	}
}

func TestRequestMetrics_UsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	requestMetrics := NewRequestMetrics("paygate")
	if err := requestMetrics.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	server := NewServer(Dependencies{Transactions: memrepo.New(), RequestMetrics: requestMetrics}, DefaultServerConfig())

	serve(server, http.MethodGet, "/transactions/"+uuid.New().String(), "")
	serve(server, http.MethodGet, "/transactions/"+uuid.New().String(), "")
	serve(server, http.MethodGet, "/health", "")

	if n := testutil.ToFloat64(requestMetrics.requests.WithLabelValues(http.MethodGet, "/transactions/{id}", "404")); n != 2 {
		t.Errorf("Expected 2 lookups under the route template, got %v", n)
	}
	if n := testutil.ToFloat64(requestMetrics.requests.WithLabelValues(http.MethodGet, "/health", "200")); n != 1 {
		t.Errorf("Expected 1 health check, got %v", n)
	}
}
