package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// Config bounds the waiting line and the lifetime of the head session.
type Config struct {
	// MaxQueueSize counts the active head plus every waiting entry.
	MaxQueueSize int
	// HeadTimeout evicts a head that never made a session-consuming call.
	HeadTimeout time.Duration
	// MaxSessionDuration evicts a dispatched session that is never finished. Zero disables it.
	MaxSessionDuration time.Duration
}

// Transition describes a head change performed by the manager.
type Transition struct {
	Evicted  *domain.Session
	Reason   domain.EvictionReason
	Promoted *domain.Session
}

// QueueManager serializes clients through the waiting line and promotes the head
// into the single active session.
//
// State per access key: Absent -> Queued -> Active -> Absent.
type QueueManager struct {
	cfg      Config
	queue    *Queue
	registry *Registry
	pool     *PortPool
	head     string
}

// NewQueueManager creates a manager that allocates session ports from pool.
func NewQueueManager(cfg Config, pool *PortPool, newToken TokenFunc) *QueueManager {
	return &QueueManager{
		cfg:      cfg,
		queue:    NewQueue(),
		registry: NewRegistry(pool, newToken),
		pool:     pool,
	}
}

// Enqueue appends key to the line.
func (m *QueueManager) Enqueue(key string, now time.Time) domain.AddResult {
	if m.queue.Contains(key) || key == m.head {
		return domain.AddResultAlreadyQueued
	}
	if m.Len() >= m.cfg.MaxQueueSize {
		return domain.AddResultQueueFull
	}
	m.queue.Push(key, now)
	return domain.AddResultAdded
}

// Position returns the rank of key in line. The active head is rank 0 and waiting entries
// follow it. When key is the first waiting entry and no session is active, it is promoted
// on the spot and the new session is returned alongside its credential.
func (m *QueueManager) Position(key string, now time.Time) (domain.Position, *domain.Session, error) {
	if key != "" && key == m.head {
		s, _ := m.registry.Get(key)
		return positionAt(0, s.ComputationKey), nil, nil
	}

	rank, ok := m.queue.Rank(key)
	if !ok {
		return domain.Position{}, nil, nil
	}
	if m.head != "" {
		return positionAt(rank+1, ""), nil, nil
	}
	if rank > 0 {
		return positionAt(rank, ""), nil, nil
	}

	s, err := m.promoteHead(now)
	if err != nil {
		if errors.Is(err, domain.ErrExhausted) {
			err = fmt.Errorf("%w: %w", domain.ErrQueueFull, err)
		}
		return positionAt(0, ""), nil, err
	}
	return positionAt(0, s.ComputationKey), copySession(s), nil
}

// Validate reports whether credential belongs to the live session of key.
func (m *QueueManager) Validate(key, credential string) bool {
	return m.registry.Validate(key, credential)
}

// Consume marks phase as used on the session of key and disarms the head timeout.
func (m *QueueManager) Consume(key, credential string, phase domain.Phase, now time.Time) (domain.Session, error) {
	s, ok := m.registry.Get(key)
	if !ok {
		return domain.Session{}, domain.ErrNotActive
	}
	if !tokensEqual(s.ComputationKey, credential) {
		return domain.Session{}, domain.ErrInvalidCredential
	}

	switch phase {
	case domain.PhaseShareData:
		if s.SharedData {
			return domain.Session{}, domain.ErrPhaseConsumed
		}
		s.SharedData = true
	case domain.PhaseQueryComputation:
		if s.QueriedComputation {
			return domain.Session{}, domain.ErrPhaseConsumed
		}
		s.QueriedComputation = true
	default:
		return domain.Session{}, fmt.Errorf("unknown phase %q", phase)
	}

	if m.cfg.MaxSessionDuration > 0 && s.Deadline.IsZero() {
		s.Deadline = now.Add(m.cfg.MaxSessionDuration)
	}
	return *s, nil
}

// Retire ends the session of key. It is idempotent for the credential of a session that
// was already retired. The returned session is nil unless this call removed it.
func (m *QueueManager) Retire(key, credential string) (bool, *domain.Session, error) {
	outcome, s, err := m.registry.Retire(key, credential)
	if s == nil {
		if err != nil {
			return false, nil, err
		}
		return outcome == AlreadyRetired, nil, nil
	}
	if key == m.head {
		m.head = ""
	}
	return true, copySession(s), err
}

// Sweep evicts a stalled head and promotes the next waiting entry when the line has no
// active session. Eviction hands over: the successor's block is allocated before the
// evicted block is released, so the two never share ports when the pool allows it.
func (m *QueueManager) Sweep(now time.Time) ([]Transition, error) {
	if m.head == "" {
		if m.queue.Len() == 0 {
			return nil, nil
		}
		promoted, err := m.promoteHead(now)
		if err != nil {
			return nil, err
		}
		return []Transition{{Promoted: copySession(promoted)}}, nil
	}

	s, _ := m.registry.Get(m.head)
	var reason domain.EvictionReason
	switch {
	case !s.Consumed() && now.After(s.HeadDeadline):
		reason = domain.EvictHeadTimeout
	case !s.Deadline.IsZero() && now.After(s.Deadline):
		reason = domain.EvictSessionDeadline
	default:
		return nil, nil
	}

	evicted, _ := m.registry.Detach(m.head)
	m.head = ""

	var promoted *domain.Session
	var promoteErr error
	if m.queue.Len() > 0 {
		promoted, promoteErr = m.promoteHead(now)
	}
	releaseErr := m.pool.Release(evicted.Ports)
	if errors.Is(promoteErr, domain.ErrExhausted) && releaseErr == nil {
		promoted, promoteErr = m.promoteHead(now)
	}

	t := Transition{Evicted: copySession(evicted), Reason: reason}
	if promoted != nil {
		t.Promoted = copySession(promoted)
	}
	return []Transition{t}, errors.Join(releaseErr, promoteErr)
}

// Len returns the number of identifiers in line, the active head included.
func (m *QueueManager) Len() int {
	n := m.queue.Len()
	if m.head != "" {
		n++
	}
	return n
}

// Active returns a copy of the head session.
func (m *QueueManager) Active() (*domain.Session, bool) {
	if m.head == "" {
		return nil, false
	}
	s, ok := m.registry.Get(m.head)
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

// Session returns a copy of the live session of key.
func (m *QueueManager) Session(key string) (*domain.Session, bool) {
	s, ok := m.registry.Get(key)
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

// Status reports where key stands without promoting anyone.
func (m *QueueManager) Status(key string) domain.Status {
	st := domain.Status{AccessKey: key, State: domain.StateAbsent}
	if key != "" && key == m.head {
		if s, ok := m.Active(); ok {
			redacted := s.Redacted()
			st.Session = &redacted
		}
		st.State = domain.StateActive
		st.Position = positionAt(0, "").Position
		return st
	}
	if rank, ok := m.queue.Rank(key); ok {
		if m.head != "" {
			rank++
		}
		st.State = domain.StateQueued
		st.Position = &rank
	}
	return st
}

// Queued reports whether key is waiting.
func (m *QueueManager) Queued(key string) bool {
	return m.queue.Contains(key)
}

// Snapshot returns a consistent copy of the admission state with credentials redacted.
func (m *QueueManager) Snapshot(now time.Time) domain.Snapshot {
	snap := domain.Snapshot{
		Waiting:        m.queue.Entries(),
		FreePortBlocks: m.pool.Free(),
		Capacity:       m.cfg.MaxQueueSize,
		TakenAt:        now,
	}
	if s, ok := m.Active(); ok {
		redacted := s.Redacted()
		snap.Active = &redacted
	}
	return snap
}

// FreeBlocks returns the number of free port blocks.
func (m *QueueManager) FreeBlocks() int {
	return m.pool.Free()
}

func (m *QueueManager) promoteHead(now time.Time) (*domain.Session, error) {
	entry, ok := m.queue.Head()
	if !ok {
		return nil, nil
	}
	s, err := m.registry.Promote(entry.AccessKey, now, m.cfg.HeadTimeout)
	if err != nil {
		return nil, err
	}
	m.queue.Remove(entry.AccessKey)
	m.head = entry.AccessKey
	return s, nil
}

func positionAt(rank int, credential string) domain.Position {
	return domain.Position{Position: &rank, ComputationKey: credential}
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
