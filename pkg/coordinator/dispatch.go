package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// ErrCommitmentMismatch is reported when parties disagree on the commitment of one input.
var ErrCommitmentMismatch = errors.New("parties returned different data commitments")

// recordTimeout bounds the ledger write that closes a share dispatch.
const recordTimeout = 10 * time.Second

func (c *Coordinator) dispatchShare(ctx context.Context, s domain.Session, req domain.ShareDataRequest, secretIndex int) {
	ctx, cancel := context.WithTimeout(ctx, c.dispatchTimeout)
	defer cancel()
	start := c.clock()

	mpcReq := domain.ShareDataMPCRequest{
		TLSNProof:      req.TLSNProof,
		MPCPortBase:    s.Ports.MPCPortBase(),
		SecretIndex:    secretIndex,
		ClientID:       req.ClientID,
		ClientPortBase: s.Ports.ClientPortBase(),
		ClientCertFile: req.ClientCertFile,
		InputBytes:     c.policy.InputBytes,
	}
	commitments, err := fanOut(ctx, c.parties, func(ctx context.Context, p ports.PartyClient) (string, error) {
		resp, err := p.ShareData(ctx, mpcReq)
		return resp.DataCommitment, err
	})

	var commitment string
	if err == nil {
		commitment, err = agree(commitments)
	}

	if err != nil {
		c.release(req)
	}

	// The index is recorded even when the dispatch failed: some parties may hold it already.
	rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer rcancel()
	recErr := c.ledger.Record(rctx, domain.Contribution{
		AccessKey:   req.AccessKey,
		Address:     req.EthAddress,
		SecretIndex: secretIndex,
		Commitment:  commitment,
		RecordedAt:  c.clock(),
		Failed:      err != nil,
	})
	switch {
	case recErr == nil:
	case err == nil:
		err = fmt.Errorf("failed to record contribution: %w", recErr)
	default:
		c.logger.Error("Secret index not recorded", "secret_index", secretIndex, "err", recErr)
	}

	c.emitDispatch(ctx, s, domain.PhaseShareData, commitment, start, err)
}

func (c *Coordinator) dispatchQuery(ctx context.Context, s domain.Session, req domain.QueryComputationRequest) {
	ctx, cancel := context.WithTimeout(ctx, c.dispatchTimeout)
	defer cancel()
	start := c.clock()

	mpcReq := domain.QueryComputationMPCRequest{
		MPCPortBase:    s.Ports.MPCPortBase(),
		ClientID:       req.ClientID,
		ClientPortBase: s.Ports.ClientPortBase(),
		ClientCertFile: req.ClientCertFile,
	}
	_, err := fanOut(ctx, c.parties, func(ctx context.Context, p ports.PartyClient) (string, error) {
		return "", p.QueryComputation(ctx, mpcReq)
	})

	c.emitDispatch(ctx, s, domain.PhaseQueryComputation, "", start, err)
}

func (c *Coordinator) emitDispatch(ctx context.Context, s domain.Session, phase domain.Phase, commitment string, start time.Time, err error) {
	if c.hooks.OnDispatch == nil {
		if err != nil {
			c.logger.Error("Dispatch failed", "access_key", s.AccessKey, "phase", phase, "err", err)
		}
		return
	}
	c.hooks.OnDispatch(ctx, &domain.DispatchEvent{
		EventBase: domain.EventBase{
			Timestamp: c.clock(),
			Type:      domain.EventDispatch,
			AccessKey: s.AccessKey,
		},
		Phase:      phase,
		Ports:      s.Ports,
		Commitment: commitment,
		Duration:   c.clock().Sub(start),
		Err:        err,
	})
}

// fanOut calls every party concurrently. The first failure cancels the others.
func fanOut(ctx context.Context, parties []ports.PartyClient, call func(context.Context, ports.PartyClient) (string, error)) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]string, len(parties))
	for i, p := range parties {
		g.Go(func() error {
			r, err := call(gctx, p)
			if err != nil {
				return fmt.Errorf("party %d: %w", p.ID(), err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func agree(commitments []string) (string, error) {
	if len(commitments) == 0 {
		return "", nil
	}
	for _, c := range commitments[1:] {
		if c != commitments[0] {
			return "", &domain.EngineError{
				Tool:   "mpc",
				Stdout: fmt.Sprintf("%v", commitments),
				Err:    ErrCommitmentMismatch,
			}
		}
	}
	return commitments[0], nil
}
