package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIKeyHeader carries the shared secret between the coordinator and the parties.
const APIKeyHeader = "X-API-Key"

// Party is the engine side served by the party API.
type Party interface {
	Cert(ctx context.Context) (domain.PartyCert, error)
	ShareData(ctx context.Context, req domain.ShareDataMPCRequest) (domain.ShareDataMPCResponse, error)
	QueryComputation(ctx context.Context, req domain.QueryComputationMPCRequest) error
}

// PartyServer serves the party API.
type PartyServer struct {
	Party Party
}

// NewPartyHandler creates the HTTP handler of a party server.
// Every route but /cert and /health requires apiKey. An empty apiKey disables the check.
func NewPartyHandler(p Party, apiKey string) http.Handler {
	s := &PartyServer{Party: p}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", GetHealth)
	r.Get("/cert", s.GetCert)
	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(apiKey))
		r.Post("/request_sharing_data_mpc", s.RequestSharingDataMPC)
		r.Post("/request_querying_computation_mpc", s.RequestQueryComputationMPC)
	})
	return r
}

func requireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(APIKeyHeader)), []byte(apiKey)) != 1 {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				slog.Warn("Party: Invalid API key", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetCert handles GET /cert.
func (s *PartyServer) GetCert(w http.ResponseWriter, r *http.Request) {
	cert, err := s.Party.Cert(r.Context())
	if err != nil {
		writeError(w, "GetCert", err)
		return
	}
	writeJSON(w, "GetCert", cert)
}

// RequestSharingDataMPC handles POST /request_sharing_data_mpc.
// It blocks until the engine produced the data commitment.
func (s *PartyServer) RequestSharingDataMPC(w http.ResponseWriter, r *http.Request) {
	var body domain.ShareDataMPCRequest
	if !decode(w, r, "RequestSharingDataMPC", &body) {
		return
	}

	resp, err := s.Party.ShareData(r.Context(), body)
	if err != nil {
		writeError(w, "RequestSharingDataMPC", err)
		return
	}
	writeJSON(w, "RequestSharingDataMPC", resp)
}

// RequestQueryComputationMPC handles POST /request_querying_computation_mpc.
func (s *PartyServer) RequestQueryComputationMPC(w http.ResponseWriter, r *http.Request) {
	var body domain.QueryComputationMPCRequest
	if !decode(w, r, "RequestQueryComputationMPC", &body) {
		return
	}

	if err := s.Party.QueryComputation(r.Context(), body); err != nil {
		writeError(w, "RequestQueryComputationMPC", err)
		return
	}
	writeJSON(w, "RequestQueryComputationMPC", struct{}{})
}
