package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"paygate/pkg/adapter"
	"paygate/pkg/biller"
	"paygate/pkg/events"
	"paygate/pkg/logging"
	"paygate/pkg/processing"
	"paygate/pkg/repository"
	"paygate/pkg/resilience"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Finder loads stored transactions.
type Finder interface {
	FindByID(ctx context.Context, id uuid.UUID) (transaction.Aggregate, error)
}

// Circuits reports the breaker states.
type Circuits interface {
	States() []resilience.CircuitStatus
}

// Completer finishes charges left pending by a 3DS challenge.
type Completer interface {
	CompleteThreeDS(ctx context.Context, id uuid.UUID, req adapter.CompleteRequest) (biller.Response, error)
}

// Server provides the gateway's operational HTTP endpoints.
type Server struct {
	transactions Finder
	circuits     Circuits
	completer    Completer
	gatherer     prometheus.Gatherer
	builder      *events.Builder
	logger       *logging.Logger
	router       *mux.Router
	server       *http.Server
	config       ServerConfig
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string `yaml:"address"`

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RequestTimeout bounds the work done for one request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   35 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Dependencies are the collaborators of the Server. Completer and Gatherer
// are optional: without them the matching routes answer 501 and a plain text
// notice.
type Dependencies struct {
	Transactions Finder
	Circuits     Circuits
	Completer    Completer
	Gatherer     prometheus.Gatherer
	// RequestMetrics, when set, wraps every route.
	RequestMetrics *RequestMetrics
	Builder        *events.Builder
	Logger         *logging.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, config ServerConfig) *Server {
	if deps.Builder == nil {
		deps.Builder = events.NewBuilder(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Global()
	}

	s := &Server{
		transactions: deps.Transactions,
		circuits:     deps.Circuits,
		completer:    deps.Completer,
		gatherer:     deps.Gatherer,
		builder:      deps.Builder,
		logger:       deps.Logger.Named("api"),
		config:       config,
	}

	r := mux.NewRouter()
	if deps.RequestMetrics != nil {
		r.Use(deps.RequestMetrics.Middleware())
	}

	// Health and status endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
	r.HandleFunc("/circuits", s.handleCircuits).Methods(http.MethodGet)

	r.HandleFunc("/transactions/{id}", s.handleTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}/3ds/complete", s.handleCompleteThreeDS).Methods(http.MethodPost)

	s.router = r
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server error", zap.Error(err))
		}
	}()
	s.logger.Info("api server listening", zap.String("address", s.config.Address))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	writeJSON(w, http.StatusOK, response)
}

// handleStatus reports uptime and how many circuits are not closed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(startTime).String(),
	}

	if s.circuits != nil {
		states := s.circuits.States()
		open := 0
		for _, c := range states {
			if c.State != "closed" {
				open++
			}
		}
		response["circuits"] = len(states)
		response["circuits_not_closed"] = open
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) metricsHandler() http.Handler {
	if s.gatherer != nil {
		return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "# Metrics collector does not support Prometheus format\n")
	})
}

func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	if s.circuits == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"circuits": []resilience.CircuitStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"circuits": s.circuits.States()})
}

// handleTransaction returns the obfuscated view of a stored transaction.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.transactionID(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	tx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		s.writeError(w, id, err)
		return
	}

	view, err := NewTransactionView(s.builder, tx)
	if err != nil {
		s.writeError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCompleteThreeDS(w http.ResponseWriter, r *http.Request) {
	if s.completer == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]interface{}{
			"error": "3ds completion is not configured",
		})
		return
	}

	id, ok := s.transactionID(w, r)
	if !ok {
		return
	}

	var req adapter.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
		return
	}
	if req.PaRes == "" && req.CRes == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "pares or cres is required",
		})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	resp, err := s.completer.CompleteThreeDS(ctx, id, req)
	if err != nil {
		s.writeError(w, id, err)
		return
	}

	writeJSON(w, StatusCodeFor(resp), NewOutcomeView(id.String(), resp))
}

func (s *Server) transactionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid transaction id",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

func (s *Server) writeError(w http.ResponseWriter, id uuid.UUID, err error) {
	status := http.StatusInternalServerError
	switch {
	case repository.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, processing.ErrNotAwaitingThreeDS):
		status = http.StatusConflict
	case errors.Is(err, adapter.ErrUnsupportedOperation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("transaction_id", id.String()), zap.Error(err))
	}
	writeJSON(w, status, map[string]interface{}{
		"error":          err.Error(),
		"transaction_id": id.String(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

var startTime = time.Now()
