package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/party"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
)

// Coordinator is the admission core served by the coordination API.
type Coordinator interface {
	AddUserToQueue(ctx context.Context, accessKey string) (domain.AddResult, error)
	GetPosition(ctx context.Context, accessKey string) (domain.Position, error)
	ValidateComputationKey(accessKey, computationKey string) bool
	RequestSharingData(ctx context.Context, req domain.ShareDataRequest) (domain.Grant, error)
	RequestQueryComputation(ctx context.Context, req domain.QueryComputationRequest) (domain.Grant, error)
	FinishComputation(ctx context.Context, accessKey, computationKey string) (bool, error)
	HasAddressSharedData(ctx context.Context, address string) (bool, error)
	Snapshot() domain.Snapshot
	SessionStatus(accessKey string) domain.Status
}

// AccessKeyRequest is the body of calls that only identify the client.
type AccessKeyRequest struct {
	AccessKey string `json:"access_key"`
}

// CredentialRequest is the body of calls that present a computation key.
type CredentialRequest struct {
	AccessKey      string `json:"access_key"`
	ComputationKey string `json:"computation_key"`
}

// AddressRequest is the body of POST /has_address_shared_data.
type AddressRequest struct {
	EthAddress string `json:"eth_address"`
}

type AddUserResponse struct {
	Result domain.AddResult `json:"result"`
}

// PositionResponse mirrors domain.Position with explicit nulls on the wire.
type PositionResponse struct {
	Position       *int    `json:"position"`
	ComputationKey *string `json:"computation_key"`
}

type PortResponse struct {
	ClientPortBase int `json:"client_port_base"`
}

type ValidateResponse struct {
	IsValid bool `json:"is_valid"`
}

type FinishResponse struct {
	IsFinished bool `json:"is_finished"`
}

type AddressResponse struct {
	HasSharedData bool `json:"has_shared_data"`
}

// Server serves the coordination API.
type Server struct {
	Coordinator Coordinator
}

type options struct {
	metrics  http.Handler
	validate func(http.Handler) http.Handler
}

// Option configures the coordination handler.
type Option func(*options)

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) {
		o.metrics = h
	}
}

// WithRequestValidation checks request bodies against the embedded OpenAPI document.
func WithRequestValidation(mw func(http.Handler) http.Handler) Option {
	return func(o *options) {
		o.validate = mw
	}
}

// NewHandler creates the HTTP handler of the coordination server.
func NewHandler(c Coordinator, opts ...Option) http.Handler {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	s := &Server{Coordinator: c}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if o.validate != nil {
		r.Use(o.validate)
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(RawSpec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if o.metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.metrics)
	}

	r.Post("/add_user_to_queue", s.AddUserToQueue)
	r.Post("/get_position", s.GetPosition)
	r.Post("/request_sharing_data", s.RequestSharingData)
	r.Post("/request_querying_computation", s.RequestQueryComputation)
	r.Post("/validate_computation_key", s.ValidateComputationKey)
	r.Post("/finish_computation", s.FinishComputation)
	r.Post("/has_address_shared_data", s.HasAddressSharedData)
	r.Get("/sessions/{access_key}", s.GetSessionStatus)
	r.Get("/queue", s.GetQueue)
	r.Get("/health", GetHealth)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>mpcgate API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
        window.ui = SwaggerUIBundle({
            url: '/openapi.yaml',
            dom_id: '#swagger-ui',
        });
    };
</script>
</body>
</html>
`

// AddUserToQueue handles POST /add_user_to_queue.
func (s *Server) AddUserToQueue(w http.ResponseWriter, r *http.Request) {
	var body AccessKeyRequest
	if !decode(w, r, "AddUserToQueue", &body) {
		return
	}
	if body.AccessKey == "" {
		http.Error(w, "access_key is required", http.StatusBadRequest)
		return
	}

	result, err := s.Coordinator.AddUserToQueue(r.Context(), body.AccessKey)
	if err != nil {
		writeError(w, "AddUserToQueue", err)
		return
	}
	writeJSON(w, "AddUserToQueue", AddUserResponse{Result: result})
}

// GetPosition handles POST /get_position. It answers 503 while no port block is free.
func (s *Server) GetPosition(w http.ResponseWriter, r *http.Request) {
	var body AccessKeyRequest
	if !decode(w, r, "GetPosition", &body) {
		return
	}

	pos, err := s.Coordinator.GetPosition(r.Context(), body.AccessKey)
	if err != nil {
		writeError(w, "GetPosition", err)
		return
	}
	resp := PositionResponse{Position: pos.Position}
	if pos.ComputationKey != "" {
		resp.ComputationKey = &pos.ComputationKey
	}
	writeJSON(w, "GetPosition", resp)
}

// RequestSharingData handles POST /request_sharing_data.
func (s *Server) RequestSharingData(w http.ResponseWriter, r *http.Request) {
	var body domain.ShareDataRequest
	if !decode(w, r, "RequestSharingData", &body) {
		return
	}

	grant, err := s.Coordinator.RequestSharingData(r.Context(), body)
	if err != nil {
		writeError(w, "RequestSharingData", err)
		return
	}
	writeJSON(w, "RequestSharingData", PortResponse{ClientPortBase: grant.ClientPortBase()})
}

// RequestQueryComputation handles POST /request_querying_computation.
func (s *Server) RequestQueryComputation(w http.ResponseWriter, r *http.Request) {
	var body domain.QueryComputationRequest
	if !decode(w, r, "RequestQueryComputation", &body) {
		return
	}

	grant, err := s.Coordinator.RequestQueryComputation(r.Context(), body)
	if err != nil {
		writeError(w, "RequestQueryComputation", err)
		return
	}
	writeJSON(w, "RequestQueryComputation", PortResponse{ClientPortBase: grant.ClientPortBase()})
}

// ValidateComputationKey handles POST /validate_computation_key.
func (s *Server) ValidateComputationKey(w http.ResponseWriter, r *http.Request) {
	var body CredentialRequest
	if !decode(w, r, "ValidateComputationKey", &body) {
		return
	}
	valid := s.Coordinator.ValidateComputationKey(body.AccessKey, body.ComputationKey)
	writeJSON(w, "ValidateComputationKey", ValidateResponse{IsValid: valid})
}

// FinishComputation handles POST /finish_computation.
func (s *Server) FinishComputation(w http.ResponseWriter, r *http.Request) {
	var body CredentialRequest
	if !decode(w, r, "FinishComputation", &body) {
		return
	}

	finished, err := s.Coordinator.FinishComputation(r.Context(), body.AccessKey, body.ComputationKey)
	if err != nil {
		writeError(w, "FinishComputation", err)
		return
	}
	writeJSON(w, "FinishComputation", FinishResponse{IsFinished: finished})
}

// HasAddressSharedData handles POST /has_address_shared_data.
func (s *Server) HasAddressSharedData(w http.ResponseWriter, r *http.Request) {
	var body AddressRequest
	if !decode(w, r, "HasAddressSharedData", &body) {
		return
	}

	shared, err := s.Coordinator.HasAddressSharedData(r.Context(), body.EthAddress)
	if err != nil {
		writeError(w, "HasAddressSharedData", err)
		return
	}
	writeJSON(w, "HasAddressSharedData", AddressResponse{HasSharedData: shared})
}

// GetSessionStatus handles GET /sessions/{access_key}.
func (s *Server) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	var accessKey string
	err := runtime.BindStyledParameterWithOptions("simple", "access_key", chi.URLParam(r, "access_key"), &accessKey,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid format for parameter access_key: %v", err), http.StatusBadRequest)
		slog.Warn("GetSessionStatus: Invalid path parameter", "error", err)
		return
	}
	writeJSON(w, "GetSessionStatus", s.Coordinator.SessionStatus(accessKey))
}

// GetQueue handles GET /queue.
func (s *Server) GetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "GetQueue", s.Coordinator.Snapshot())
}

// GetHealth handles GET /health.
func GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		slog.Warn(op+": Invalid request body", "error", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, op string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(op+" response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	code := StatusCode(err)
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		slog.Error(op+" failed", "error", err)
	} else {
		slog.Debug(op+" rejected", "error", err, "status", code)
	}
	http.Error(w, err.Error(), code)
}

// StatusCode maps a core error to the HTTP status reported to callers.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotActive):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyContributed),
		errors.Is(err, domain.ErrPhaseConsumed),
		errors.Is(err, domain.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, party.ErrTooManyProviders):
		return http.StatusUnprocessableEntity
	case domain.IsEngineFailure(err), errors.Is(err, party.ErrCommitmentMismatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
