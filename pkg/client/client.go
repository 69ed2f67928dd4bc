// Package client drives a contributor or a querier through the admission queue.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/mpcgate/internal/logging"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
)

// ErrDropped is returned when the access key left the line while the client was waiting,
// usually because its session was evicted after the head timeout.
var ErrDropped = fmt.Errorf("access key is no longer queued: %w", domain.ErrNotActive)

// Coordinator is the coordination API as seen by a client.
type Coordinator interface {
	AddUserToQueue(ctx context.Context, accessKey string) (domain.AddResult, error)
	GetPosition(ctx context.Context, accessKey string) (domain.Position, error)
	RequestSharingData(ctx context.Context, req domain.ShareDataRequest) (int, error)
	RequestQueryComputation(ctx context.Context, req domain.QueryComputationRequest) (int, error)
	FinishComputation(ctx context.Context, accessKey, computationKey string) (bool, error)
}

// Config holds what a client needs besides its collaborators.
type Config struct {
	PollDuration time.Duration
	// MaxWait bounds the whole queue-and-wait phase. Zero means unbounded.
	MaxWait time.Duration

	ClientID       int
	ClientCertFile string
	EthAddress     string
	CertsPath      string
	PartyHosts     []string

	ProverTool string
	ShareTool  string
	QueryTool  string
	ProofFile  string
}

// Progress is reported while the client waits.
type Progress struct {
	AccessKey string
	Stage     string
	Position  *int
}

// Stages reported through Progress.
const (
	StageQueueFull   = "queue_full"
	StageQueued      = "queued"
	StageReady       = "ready"
	StageFetchCerts  = "fetch_certs"
	StageDispatching = "dispatching"
	StageFinished    = "finished"
)

// Client runs the share and query flows against a coordinator.
type Client struct {
	cfg     Config
	coord   Coordinator
	parties []ports.PartyClient
	runner  ports.ProcessRunner
	logger  *slog.Logger

	progress func(Progress)
	newKey   func() (string, error)
}

// Option configures the Client.
type Option func(*Client)

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithProgress registers a callback for queue progress.
func WithProgress(fn func(Progress)) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithAccessKeyFunc replaces the random access key generator used by Query.
func WithAccessKeyFunc(fn func() (string, error)) Option {
	return func(c *Client) {
		c.newKey = fn
	}
}

// New creates a Client. parties are only used to fetch certificates.
func New(cfg Config, coord Coordinator, parties []ports.PartyClient, runner ports.ProcessRunner, opts ...Option) *Client {
	if cfg.PollDuration <= 0 {
		cfg.PollDuration = domain.DefaultPollDuration
	}
	c := &Client{
		cfg:      cfg,
		coord:    coord,
		parties:  parties,
		runner:   runner,
		logger:   logging.NewNop(),
		progress: func(Progress) {},
		newKey:   NewAccessKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAccessKey returns 16 random bytes in URL-safe base64.
func NewAccessKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AddUserToQueue enters the line, retrying every PollDuration while the queue is full.
// An access key that is already queued counts as added.
func (c *Client) AddUserToQueue(ctx context.Context, accessKey string) error {
	for {
		result, err := c.coord.AddUserToQueue(ctx, accessKey)
		switch {
		case err != nil && !errors.Is(err, domain.ErrQueueFull):
			return fmt.Errorf("failed to join the queue: %w", err)
		case err == nil && result != domain.AddResultQueueFull:
			c.logger.Debug("Joined queue", "access_key", accessKey, "result", result)
			return nil
		}
		c.progress(Progress{AccessKey: accessKey, Stage: StageQueueFull})
		if err := c.sleep(ctx); err != nil {
			return err
		}
	}
}

// WaitForTurn polls the position until the access key reaches the head and returns the
// computation key. Back-pressure answers are waited out.
func (c *Client) WaitForTurn(ctx context.Context, accessKey string) (string, error) {
	for {
		pos, err := c.coord.GetPosition(ctx, accessKey)
		switch {
		case errors.Is(err, domain.ErrQueueFull):
			c.progress(Progress{AccessKey: accessKey, Stage: StageQueueFull})
		case err != nil:
			return "", fmt.Errorf("failed to poll position: %w", err)
		case pos.Position == nil:
			return "", ErrDropped
		case pos.IsHead():
			c.progress(Progress{AccessKey: accessKey, Stage: StageReady, Position: pos.Position})
			return pos.ComputationKey, nil
		default:
			c.progress(Progress{AccessKey: accessKey, Stage: StageQueued, Position: pos.Position})
		}
		if err := c.sleep(ctx); err != nil {
			return "", err
		}
	}
}

// FetchPartyCerts stores every party certificate as CertsPath/party_<id>.pem.
func (c *Client) FetchPartyCerts(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.CertsPath, 0o755); err != nil {
		return fmt.Errorf("failed to create certs dir: %w", err)
	}
	for _, p := range c.parties {
		cert, err := p.Cert(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch certificate of party %d: %w", p.ID(), err)
		}
		path := filepath.Join(c.cfg.CertsPath, fmt.Sprintf("party_%d.pem", cert.PartyID))
		if err := os.WriteFile(path, []byte(cert.CertFile), 0o644); err != nil {
			return fmt.Errorf("failed to save certificate of party %d: %w", cert.PartyID, err)
		}
	}
	return nil
}

// ShareResult describes a completed contribution.
type ShareResult struct {
	AccessKey      string
	ClientPortBase int
	Output         any
}

// Share notarizes the data, waits for a session and feeds the secret to the parties.
func (c *Client) Share(ctx context.Context, accessKey string) (*ShareResult, error) {
	prover, err := c.runner.Run(ctx, c.cfg.ProverTool, map[string]any{"proof_file": c.cfg.ProofFile})
	if err != nil {
		return nil, fmt.Errorf("failed to notarize data: %w", err)
	}
	secret, ok := prover.Field("secret_input")
	if !ok {
		return nil, &domain.EngineError{Tool: c.cfg.ProverTool, Stdout: prover.Stdout, Err: errors.New("missing secret_input in output")}
	}
	nonce, _ := prover.Field("nonce")
	proof, err := os.ReadFile(c.cfg.ProofFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read proof: %w", err)
	}

	var result *ShareResult
	err = c.session(ctx, accessKey, func(ctx context.Context, computationKey string) error {
		base, err := c.coord.RequestSharingData(ctx, domain.ShareDataRequest{
			EthAddress:     c.cfg.EthAddress,
			TLSNProof:      string(proof),
			ClientID:       c.cfg.ClientID,
			ClientCertFile: c.cfg.ClientCertFile,
			AccessKey:      accessKey,
			ComputationKey: computationKey,
		})
		if err != nil {
			return fmt.Errorf("failed to request sharing: %w", err)
		}
		c.progress(Progress{AccessKey: accessKey, Stage: StageDispatching})

		res, err := c.runner.Run(ctx, c.cfg.ShareTool, c.engineArgs(base, map[string]any{
			"secret_input": secret,
			"nonce":        nonce,
		}))
		if err != nil {
			return fmt.Errorf("failed to share data: %w", err)
		}
		result = &ShareResult{AccessKey: accessKey, ClientPortBase: base, Output: res.Output}
		return nil
	})
	return result, err
}

// QueryResult carries what the client engine printed for a query.
type QueryResult struct {
	AccessKey        string
	ComputationIndex int
	ClientPortBase   int
	Results          any
}

// Query waits for a session under a fresh access key and retrieves a computation result.
func (c *Client) Query(ctx context.Context, computationIndex int) (*QueryResult, error) {
	accessKey, err := c.newKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access key: %w", err)
	}

	var result *QueryResult
	err = c.session(ctx, accessKey, func(ctx context.Context, computationKey string) error {
		base, err := c.coord.RequestQueryComputation(ctx, domain.QueryComputationRequest{
			ClientID:       c.cfg.ClientID,
			ClientCertFile: c.cfg.ClientCertFile,
			AccessKey:      accessKey,
			ComputationKey: computationKey,
		})
		if err != nil {
			return fmt.Errorf("failed to request query: %w", err)
		}
		c.progress(Progress{AccessKey: accessKey, Stage: StageDispatching})

		res, err := c.runner.Run(ctx, c.cfg.QueryTool, c.engineArgs(base, map[string]any{
			"computation_index": computationIndex,
		}))
		if err != nil {
			return fmt.Errorf("failed to query computation: %w", err)
		}
		result = &QueryResult{
			AccessKey:        accessKey,
			ComputationIndex: computationIndex,
			ClientPortBase:   base,
			Results:          res.Output,
		}
		return nil
	})
	return result, err
}

// session queues accessKey, waits for its turn and runs fn with the computation key.
// The session is finished afterwards whatever fn returned.
func (c *Client) session(ctx context.Context, accessKey string, fn func(context.Context, string) error) error {
	waitCtx := ctx
	if c.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.MaxWait)
		defer cancel()
	}
	if err := c.AddUserToQueue(waitCtx, accessKey); err != nil {
		return err
	}
	computationKey, err := c.WaitForTurn(waitCtx, accessKey)
	if err != nil {
		return err
	}

	c.progress(Progress{AccessKey: accessKey, Stage: StageFetchCerts})
	runErr := c.FetchPartyCerts(ctx)
	if runErr == nil {
		runErr = fn(ctx, computationKey)
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	finished, err := c.coord.FinishComputation(finishCtx, accessKey, computationKey)
	if err != nil {
		c.logger.Warn("Failed to finish session", "access_key", accessKey, "err", err)
	} else if finished {
		c.progress(Progress{AccessKey: accessKey, Stage: StageFinished})
	}
	return runErr
}

func (c *Client) engineArgs(clientPortBase int, extra map[string]any) map[string]any {
	args := map[string]any{
		"client_id":        c.cfg.ClientID,
		"client_port_base": clientPortBase,
		"client_cert_file": c.cfg.ClientCertFile,
		"certs_path":       c.cfg.CertsPath,
		"party_hosts":      strings.Join(c.cfg.PartyHosts, ","),
	}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func (c *Client) sleep(ctx context.Context) error {
	t := time.NewTimer(c.cfg.PollDuration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
