// Package party runs the external MPC engine on behalf of one computation party.
package party

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aretw0/mpcgate/internal/logging"
	"github.com/aretw0/mpcgate/pkg/adapters/memory"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
)

var (
	// ErrTooManyProviders is returned when the secret index exceeds the engine capacity.
	ErrTooManyProviders = errors.New("maximum number of data providers reached")
	// ErrCommitmentMismatch is returned when the engine and the notarized proof disagree.
	ErrCommitmentMismatch = errors.New("data commitment does not match the notarized commitment")
)

// Config holds the party settings that matter to the engine.
type Config struct {
	PartyID                int
	MaxDataProviders       int
	PerformCommitmentCheck bool
	CertFile               string

	VerifierTool string
	ShareTool    string
	QueryTool    string
	// ToolTimeout bounds each tool invocation. Zero means no bound.
	ToolTimeout time.Duration
}

// Party serves session-consuming calls forwarded by the coordinator.
// It satisfies ports.PartyClient, so it can also be wired in-process.
type Party struct {
	cfg     Config
	runner  ports.ProcessRunner
	archive ports.CommitmentArchive
	logger  *slog.Logger

	engine sync.Mutex // one engine at a time
}

// Option configures the Party.
type Option func(*Party)

// WithArchive sets where commitments are kept. The default keeps them in memory.
func WithArchive(a ports.CommitmentArchive) Option {
	return func(p *Party) {
		p.archive = a
	}
}

// WithLogger configures a logger for the Party.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Party) {
		p.logger = logger
	}
}

// New creates a party that invokes its tools through runner.
func New(cfg Config, runner ports.ProcessRunner, opts ...Option) *Party {
	p := &Party{
		cfg:     cfg,
		runner:  runner,
		archive: memory.NewArchive(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the party index.
func (p *Party) ID() int {
	return p.cfg.PartyID
}

// Cert returns the party certificate as stored on disk.
func (p *Party) Cert(ctx context.Context) (domain.PartyCert, error) {
	data, err := os.ReadFile(p.cfg.CertFile)
	if err != nil {
		return domain.PartyCert{}, fmt.Errorf("failed to read certificate: %w", err)
	}
	return domain.PartyCert{PartyID: p.cfg.PartyID, CertFile: string(data)}, nil
}

// ShareData verifies the notarized proof, feeds the secret into the engine and returns the
// commitment the engine computed over it.
func (p *Party) ShareData(ctx context.Context, req domain.ShareDataMPCRequest) (domain.ShareDataMPCResponse, error) {
	if req.SecretIndex < 0 || req.SecretIndex >= p.cfg.MaxDataProviders {
		return domain.ShareDataMPCResponse{}, fmt.Errorf("%w: secret index %d, limit %d", ErrTooManyProviders, req.SecretIndex, p.cfg.MaxDataProviders)
	}

	notary, err := p.verify(ctx, req.TLSNProof)
	if err != nil {
		return domain.ShareDataMPCResponse{}, err
	}

	p.engine.Lock()
	res, err := p.run(ctx, p.cfg.ShareTool, map[string]any{
		"party_id":         p.cfg.PartyID,
		"mpc_port_base":    req.MPCPortBase,
		"secret_index":     req.SecretIndex,
		"client_id":        req.ClientID,
		"client_port_base": req.ClientPortBase,
		"client_cert_file": req.ClientCertFile,
		"input_bytes":      req.InputBytes,
	})
	p.engine.Unlock()
	if err != nil {
		return domain.ShareDataMPCResponse{}, err
	}

	commitment, err := field(p.cfg.ShareTool, res, "data_commitment")
	if err != nil {
		return domain.ShareDataMPCResponse{}, err
	}
	if p.cfg.PerformCommitmentCheck && commitment != notary {
		return domain.ShareDataMPCResponse{}, &domain.EngineError{
			Tool:   p.cfg.ShareTool,
			Stdout: res.Stdout,
			Err:    fmt.Errorf("%w: engine %s, notary %s", ErrCommitmentMismatch, commitment, notary),
		}
	}

	err = p.archive.Save(ctx, ports.CommitmentRecord{
		SecretIndex:      req.SecretIndex,
		DataCommitment:   commitment,
		NotaryCommitment: notary,
		ClientID:         req.ClientID,
	})
	if err != nil {
		// Archive failures do not fail the share.
		p.logger.Error("Failed to archive commitment", "secret_index", req.SecretIndex, "err", err)
	}

	p.logger.Info("Data shared", "secret_index", req.SecretIndex, "client_id", req.ClientID)
	return domain.ShareDataMPCResponse{DataCommitment: commitment}, nil
}

// QueryComputation runs the engine query bound to the session ports. The result is delivered
// to the client by the engine itself.
func (p *Party) QueryComputation(ctx context.Context, req domain.QueryComputationMPCRequest) error {
	p.engine.Lock()
	defer p.engine.Unlock()

	_, err := p.run(ctx, p.cfg.QueryTool, map[string]any{
		"party_id":         p.cfg.PartyID,
		"mpc_port_base":    req.MPCPortBase,
		"client_id":        req.ClientID,
		"client_port_base": req.ClientPortBase,
		"client_cert_file": req.ClientCertFile,
	})
	return err
}

// Commitment returns the archived commitment for a secret index.
func (p *Party) Commitment(ctx context.Context, secretIndex int) (ports.CommitmentRecord, error) {
	return p.archive.Get(ctx, secretIndex)
}

// verify runs the notary verifier on the proof and returns the commitment it attests.
func (p *Party) verify(ctx context.Context, proof string) (string, error) {
	f, err := os.CreateTemp("", "tlsn-proof-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to stage proof: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(proof); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to stage proof: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to stage proof: %w", err)
	}

	res, err := p.run(ctx, p.cfg.VerifierTool, map[string]any{"proof_file": f.Name()})
	if err != nil {
		return "", err
	}
	return field(p.cfg.VerifierTool, res, "commitment")
}

func (p *Party) run(ctx context.Context, tool string, args map[string]any) (domain.ToolResult, error) {
	if p.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ToolTimeout)
		defer cancel()
	}
	return p.runner.Run(ctx, tool, args)
}

func field(tool string, res domain.ToolResult, name string) (string, error) {
	v, ok := res.Field(name)
	if !ok || v == "" {
		return "", &domain.EngineError{
			Tool:     tool,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("output has no %q field", name),
		}
	}
	return v, nil
}
