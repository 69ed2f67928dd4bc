package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mpcgate/internal/admission"
	"github.com/aretw0/mpcgate/internal/logging"
	"github.com/aretw0/mpcgate/pkg/adapters/memory"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
)

// Config sizes the admission state.
type Config struct {
	PortsStart int
	PortsEnd   int
	// BlockSize is the number of ports reserved per session. It must hold two ports per party.
	BlockSize int

	MaxQueueSize       int
	HeadTimeout        time.Duration
	MaxSessionDuration time.Duration
}

// Policy controls who may contribute and what the parties are told.
type Policy struct {
	// ProhibitMultipleContributions makes access keys and addresses single-use for the
	// lifetime of the ledger. When false a retired access key may queue again.
	ProhibitMultipleContributions bool
	// InputBytes is forwarded to the parties with every share.
	InputBytes int
}

// Coordinator is the facade exposed to clients and operators.
type Coordinator struct {
	mu     sync.Mutex
	queue  *admission.QueueManager
	secret int // next secret index

	// Access keys and addresses granted a share by this process while
	// ProhibitMultipleContributions is set. A failed dispatch drops its claim.
	claimedKeys  map[string]struct{}
	claimedAddrs map[string]struct{}

	ledger          ports.ContributionLedger
	parties         []ports.PartyClient
	policy          Policy
	hooks           domain.LifecycleHooks
	clock           func() time.Time
	logger          *slog.Logger
	strict          bool
	dispatchTimeout time.Duration
	newToken        admission.TokenFunc

	dispatches sync.WaitGroup
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger configures a logger for the Coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithClock replaces time.Now. Tests use it to drive timeouts deterministically.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithHooks registers lifecycle hooks. Calling it again merges the hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Coordinator) {
		c.hooks = c.hooks.Merge(hooks)
	}
}

// WithLedger sets the contribution ledger. The default keeps contributions in memory.
func WithLedger(ledger ports.ContributionLedger) Option {
	return func(c *Coordinator) {
		c.ledger = ledger
	}
}

// WithParties sets the computation parties session-consuming calls are forwarded to.
func WithParties(parties ...ports.PartyClient) Option {
	return func(c *Coordinator) {
		c.parties = parties
	}
}

// WithPolicy sets the contribution policy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithStrictInvariants panics when the port pool reports a release of an unknown block.
func WithStrictInvariants(strict bool) Option {
	return func(c *Coordinator) {
		c.strict = strict
	}
}

// WithDispatchTimeout bounds how long a party fan-out may run.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.dispatchTimeout = d
	}
}

// WithTokenFunc replaces the credential generator.
func WithTokenFunc(fn admission.TokenFunc) Option {
	return func(c *Coordinator) {
		c.newToken = fn
	}
}

// New creates a Coordinator. The secret index counter resumes after the highest index in
// the ledger.
func New(ctx context.Context, cfg Config, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		claimedKeys:     make(map[string]struct{}),
		claimedAddrs:    make(map[string]struct{}),
		ledger:          memory.NewLedger(),
		clock:           time.Now,
		logger:          logging.NewNop(),
		dispatchTimeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	if len(c.parties) > 0 && cfg.BlockSize < 2*len(c.parties) {
		return nil, fmt.Errorf("port block of %d cannot serve %d parties", cfg.BlockSize, len(c.parties))
	}
	pool, err := admission.NewPortPool(cfg.PortsStart, cfg.PortsEnd, cfg.BlockSize)
	if err != nil {
		return nil, err
	}
	c.queue = admission.NewQueueManager(admission.Config{
		MaxQueueSize:       cfg.MaxQueueSize,
		HeadTimeout:        cfg.HeadTimeout,
		MaxSessionDuration: cfg.MaxSessionDuration,
	}, pool, c.newToken)

	next, err := c.ledger.NextIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read next secret index: %w", err)
	}
	c.secret = next
	return c, nil
}

// AddUserToQueue appends accessKey to the line.
func (c *Coordinator) AddUserToQueue(ctx context.Context, accessKey string) (domain.AddResult, error) {
	if c.policy.ProhibitMultipleContributions {
		seen, err := c.ledger.HasAccessKey(ctx, accessKey)
		if err != nil {
			return "", fmt.Errorf("failed to check ledger: %w", err)
		}
		if seen {
			c.emitAdmission(ctx, accessKey, domain.AddResultAlreadyQueued, c.Len())
			return domain.AddResultAlreadyQueued, nil
		}
	}

	c.mu.Lock()
	var result domain.AddResult
	if _, claimed := c.claimedKeys[accessKey]; claimed {
		result = domain.AddResultAlreadyQueued
	} else {
		result = c.queue.Enqueue(accessKey, c.clock())
	}
	size := c.queue.Len()
	c.mu.Unlock()

	c.emitAdmission(ctx, accessKey, result, size)
	return result, nil
}

// GetPosition returns the rank of accessKey. At rank 0 the response carries the computation key.
// When no port block can be allocated it fails with an error wrapping domain.ErrQueueFull
// and the client stays at the head of the line.
func (c *Coordinator) GetPosition(ctx context.Context, accessKey string) (domain.Position, error) {
	c.mu.Lock()
	pos, promoted, err := c.queue.Position(accessKey, c.clock())
	ev := c.sessionEvent(domain.EventPromotion, promoted, "")
	c.mu.Unlock()

	if promoted != nil && c.hooks.OnPromotion != nil {
		c.hooks.OnPromotion(ctx, ev)
	}
	return pos, err
}

// ValidateComputationKey reports whether computationKey belongs to the live session of accessKey.
func (c *Coordinator) ValidateComputationKey(accessKey, computationKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Validate(accessKey, computationKey)
}

// RequestSharingData consumes the share phase of the session and forwards the proof to every
// party in the background. It returns as soon as the ports are known.
func (c *Coordinator) RequestSharingData(ctx context.Context, req domain.ShareDataRequest) (domain.Grant, error) {
	if c.policy.ProhibitMultipleContributions {
		seen, err := c.ledger.HasAddress(ctx, req.EthAddress)
		if err != nil {
			return domain.Grant{}, fmt.Errorf("failed to check ledger: %w", err)
		}
		if seen {
			return domain.Grant{}, domain.ErrAlreadyContributed
		}
	}

	c.mu.Lock()
	if c.policy.ProhibitMultipleContributions && c.claimed(req) {
		c.mu.Unlock()
		return domain.Grant{}, domain.ErrAlreadyContributed
	}
	s, err := c.queue.Consume(req.AccessKey, req.ComputationKey, domain.PhaseShareData, c.clock())
	if err != nil {
		c.mu.Unlock()
		return domain.Grant{}, err
	}
	grant := domain.Grant{Ports: s.Ports, SecretIndex: c.secret}
	c.secret++
	if c.policy.ProhibitMultipleContributions {
		c.claimedKeys[req.AccessKey] = struct{}{}
		if req.EthAddress != "" {
			c.claimedAddrs[req.EthAddress] = struct{}{}
		}
	}
	c.mu.Unlock()

	c.dispatches.Add(1)
	go func() {
		defer c.dispatches.Done()
		c.dispatchShare(context.WithoutCancel(ctx), s, req, grant.SecretIndex)
	}()
	return grant, nil
}

// RequestQueryComputation consumes the query phase of the session and asks every party to
// serve the result to the client in the background.
func (c *Coordinator) RequestQueryComputation(ctx context.Context, req domain.QueryComputationRequest) (domain.Grant, error) {
	c.mu.Lock()
	s, err := c.queue.Consume(req.AccessKey, req.ComputationKey, domain.PhaseQueryComputation, c.clock())
	c.mu.Unlock()
	if err != nil {
		return domain.Grant{}, err
	}

	c.dispatches.Add(1)
	go func() {
		defer c.dispatches.Done()
		c.dispatchQuery(context.WithoutCancel(ctx), s, req)
	}()
	return domain.Grant{Ports: s.Ports}, nil
}

// FinishComputation retires the session. Repeating it with the same credential reports
// finished without error, even after an eviction.
func (c *Coordinator) FinishComputation(ctx context.Context, accessKey, computationKey string) (bool, error) {
	c.mu.Lock()
	finished, retired, err := c.queue.Retire(accessKey, computationKey)
	ev := c.sessionEvent(domain.EventRetirement, retired, "")
	c.mu.Unlock()

	if retired != nil {
		if err != nil {
			// The session is gone, only its block could not be returned.
			c.invariant(err, "access_key", accessKey)
			err = nil
		}
		if c.hooks.OnRetirement != nil {
			c.hooks.OnRetirement(ctx, ev)
		}
	}
	return finished, err
}

// HasAddressSharedData reports whether address already contributed.
func (c *Coordinator) HasAddressSharedData(ctx context.Context, address string) (bool, error) {
	return c.ledger.HasAddress(ctx, address)
}

// Snapshot returns the admission state with credentials redacted.
func (c *Coordinator) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Snapshot(c.clock())
}

// SessionStatus reports where accessKey stands without side effects.
func (c *Coordinator) SessionStatus(accessKey string) domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Status(accessKey)
}

// Len returns the number of identifiers in line, the active head included.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// Sweep evicts a stalled head and promotes the next entry if the line has no active session.
func (c *Coordinator) Sweep(ctx context.Context, now time.Time) {
	type change struct {
		evicted  *domain.SessionEvent
		promoted *domain.SessionEvent
	}

	c.mu.Lock()
	transitions, err := c.queue.Sweep(now)
	changes := make([]change, 0, len(transitions))
	for _, t := range transitions {
		var ch change
		if t.Evicted != nil {
			ch.evicted = c.sessionEvent(domain.EventEviction, t.Evicted, t.Reason)
		}
		if t.Promoted != nil {
			ch.promoted = c.sessionEvent(domain.EventPromotion, t.Promoted, "")
		}
		changes = append(changes, ch)
	}
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, domain.ErrUnknownBlock) {
			c.invariant(err)
		} else {
			c.logger.WarnContext(ctx, "Sweep could not promote the next client", "err", err)
		}
	}

	for _, ch := range changes {
		if ch.evicted != nil && c.hooks.OnEviction != nil {
			c.hooks.OnEviction(ctx, ch.evicted)
		}
		if ch.promoted != nil && c.hooks.OnPromotion != nil {
			c.hooks.OnPromotion(ctx, ch.promoted)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Debug("Sweeper started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			c.Sweep(ctx, c.clock())
		case <-ctx.Done():
			c.logger.Debug("Sweeper stopped")
			return
		}
	}
}

// Wait blocks until every background dispatch returned.
func (c *Coordinator) Wait() {
	c.dispatches.Wait()
}

// claimed must be called with c.mu held.
func (c *Coordinator) claimed(req domain.ShareDataRequest) bool {
	if _, ok := c.claimedKeys[req.AccessKey]; ok {
		return true
	}
	if req.EthAddress == "" {
		return false
	}
	_, ok := c.claimedAddrs[req.EthAddress]
	return ok
}

// release drops the claims of a share whose dispatch failed.
func (c *Coordinator) release(req domain.ShareDataRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimedKeys, req.AccessKey)
	delete(c.claimedAddrs, req.EthAddress)
}

// sessionEvent must be called with c.mu held.
func (c *Coordinator) sessionEvent(typ domain.EventType, s *domain.Session, reason domain.EvictionReason) *domain.SessionEvent {
	if s == nil {
		return nil
	}
	return &domain.SessionEvent{
		EventBase: domain.EventBase{
			Timestamp: c.clock(),
			Type:      typ,
			AccessKey: s.AccessKey,
		},
		Ports:          s.Ports,
		Reason:         reason,
		FreePortBlocks: c.queue.FreeBlocks(),
		QueueSize:      c.queue.Len(),
	}
}

func (c *Coordinator) emitAdmission(ctx context.Context, accessKey string, result domain.AddResult, size int) {
	if c.hooks.OnAdmission == nil {
		return
	}
	c.hooks.OnAdmission(ctx, &domain.AdmissionEvent{
		EventBase: domain.EventBase{
			Timestamp: c.clock(),
			Type:      domain.EventAdmission,
			AccessKey: accessKey,
		},
		Result:    result,
		QueueSize: size,
	})
}

// invariant reports a broken port pool invariant.
func (c *Coordinator) invariant(err error, args ...any) {
	c.logger.Error("Port pool invariant violated", append(args, "err", err)...)
	if c.strict {
		panic(err)
	}
}
