package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
)

// StatusError is a non-2xx answer from a coordination or party server.
// It unwraps to the domain errors named in the response body, so callers can use errors.Is
// on both sides of the wire.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, strings.TrimSpace(e.Body))
}

// wireErrors lists, per status code, the domain errors StatusCode maps to it.
var wireErrors = map[int][]error{
	http.StatusForbidden: {domain.ErrInvalidCredential},
	http.StatusNotFound:  {domain.ErrNotActive},
	http.StatusConflict: {
		domain.ErrPhaseConsumed,
		domain.ErrAlreadyContributed,
		domain.ErrAlreadyQueued,
	},
	http.StatusServiceUnavailable: {domain.ErrQueueFull, domain.ErrExhausted},
}

// Unwrap only considers the errors that can produce e.Code, so text quoted from engine
// output in a 502 is never mistaken for an admission error.
func (e *StatusError) Unwrap() []error {
	var errs []error
	for _, sentinel := range wireErrors[e.Code] {
		if strings.Contains(e.Body, sentinel.Error()) {
			errs = append(errs, sentinel)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	switch e.Code {
	case http.StatusServiceUnavailable:
		return []error{domain.ErrQueueFull}
	case http.StatusNotFound:
		return []error{domain.ErrNotActive}
	case http.StatusForbidden:
		return []error{domain.ErrInvalidCredential}
	}
	return nil
}

// ClientOption configures the API clients.
type ClientOption func(*transport)

// WithHTTPClient replaces the default client, which times out after 5 minutes.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(t *transport) {
		t.client = c
	}
}

type transport struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newTransport(baseURL, apiKey string, opts []ClientOption) transport {
	t := transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func (t transport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		req.Header.Set(APIKeyHeader, t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Method: method, URL: req.URL.String(), Code: resp.StatusCode, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// PartyClient reaches one party server. It satisfies ports.PartyClient.
type PartyClient struct {
	id int
	t  transport
}

var _ ports.PartyClient = (*PartyClient)(nil)

// NewPartyClient creates a client for the party with index id.
func NewPartyClient(id int, baseURL, apiKey string, opts ...ClientOption) *PartyClient {
	return &PartyClient{id: id, t: newTransport(baseURL, apiKey, opts)}
}

func (c *PartyClient) ID() int {
	return c.id
}

func (c *PartyClient) Cert(ctx context.Context) (domain.PartyCert, error) {
	var cert domain.PartyCert
	err := c.t.do(ctx, http.MethodGet, "/cert", nil, &cert)
	return cert, err
}

func (c *PartyClient) ShareData(ctx context.Context, req domain.ShareDataMPCRequest) (domain.ShareDataMPCResponse, error) {
	var resp domain.ShareDataMPCResponse
	err := c.t.do(ctx, http.MethodPost, "/request_sharing_data_mpc", req, &resp)
	return resp, err
}

func (c *PartyClient) QueryComputation(ctx context.Context, req domain.QueryComputationMPCRequest) error {
	return c.t.do(ctx, http.MethodPost, "/request_querying_computation_mpc", req, nil)
}

// CoordinatorClient calls the coordination API.
type CoordinatorClient struct {
	t transport
}

// NewCoordinatorClient creates a client for the coordination server at baseURL.
func NewCoordinatorClient(baseURL string, opts ...ClientOption) *CoordinatorClient {
	return &CoordinatorClient{t: newTransport(baseURL, "", opts)}
}

func (c *CoordinatorClient) AddUserToQueue(ctx context.Context, accessKey string) (domain.AddResult, error) {
	var resp AddUserResponse
	err := c.t.do(ctx, http.MethodPost, "/add_user_to_queue", AccessKeyRequest{AccessKey: accessKey}, &resp)
	return resp.Result, err
}

func (c *CoordinatorClient) GetPosition(ctx context.Context, accessKey string) (domain.Position, error) {
	var resp PositionResponse
	if err := c.t.do(ctx, http.MethodPost, "/get_position", AccessKeyRequest{AccessKey: accessKey}, &resp); err != nil {
		return domain.Position{}, err
	}
	pos := domain.Position{Position: resp.Position}
	if resp.ComputationKey != nil {
		pos.ComputationKey = *resp.ComputationKey
	}
	return pos, nil
}

// RequestSharingData returns the client port base of the granted block.
func (c *CoordinatorClient) RequestSharingData(ctx context.Context, req domain.ShareDataRequest) (int, error) {
	var resp PortResponse
	err := c.t.do(ctx, http.MethodPost, "/request_sharing_data", req, &resp)
	return resp.ClientPortBase, err
}

// RequestQueryComputation returns the client port base of the granted block.
func (c *CoordinatorClient) RequestQueryComputation(ctx context.Context, req domain.QueryComputationRequest) (int, error) {
	var resp PortResponse
	err := c.t.do(ctx, http.MethodPost, "/request_querying_computation", req, &resp)
	return resp.ClientPortBase, err
}

func (c *CoordinatorClient) ValidateComputationKey(ctx context.Context, accessKey, computationKey string) (bool, error) {
	var resp ValidateResponse
	err := c.t.do(ctx, http.MethodPost, "/validate_computation_key", CredentialRequest{accessKey, computationKey}, &resp)
	return resp.IsValid, err
}

func (c *CoordinatorClient) FinishComputation(ctx context.Context, accessKey, computationKey string) (bool, error) {
	var resp FinishResponse
	err := c.t.do(ctx, http.MethodPost, "/finish_computation", CredentialRequest{accessKey, computationKey}, &resp)
	return resp.IsFinished, err
}

func (c *CoordinatorClient) HasAddressSharedData(ctx context.Context, address string) (bool, error) {
	var resp AddressResponse
	err := c.t.do(ctx, http.MethodPost, "/has_address_shared_data", AddressRequest{EthAddress: address}, &resp)
	return resp.HasSharedData, err
}

func (c *CoordinatorClient) SessionStatus(ctx context.Context, accessKey string) (domain.Status, error) {
	var status domain.Status
	err := c.t.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(accessKey), nil, &status)
	return status, err
}

func (c *CoordinatorClient) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := c.t.do(ctx, http.MethodGet, "/queue", nil, &snap)
	return snap, err
}

// IsRetryable reports whether err is back-pressure the client should wait out.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrQueueFull)
}
