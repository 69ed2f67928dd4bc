package admission

import (
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, capacity, blocks int) *QueueManager {
	t.Helper()
	pool, err := NewPortPool(8010, 8010+3*blocks, 3)
	require.NoError(t, err)
	return NewQueueManager(Config{
		MaxQueueSize: capacity,
		HeadTimeout:  time.Minute,
	}, pool, nil)
}

func rankOf(t *testing.T, p domain.Position) int {
	t.Helper()
	require.NotNil(t, p.Position)
	return *p.Position
}

func TestQueueManager_CapacityScenario(t *testing.T) {
	m := newTestManager(t, 3, 10)
	now := time.Unix(1700000000, 0)

	for _, key := range []string{"A", "B", "C"} {
		assert.Equal(t, domain.AddResultAdded, m.Enqueue(key, now))
	}

	posA, promoted, err := m.Position("A", now)
	require.NoError(t, err)
	assert.Equal(t, 0, rankOf(t, posA))
	assert.NotEmpty(t, posA.ComputationKey)
	require.NotNil(t, promoted)
	assert.Equal(t, domain.PortBlock{Base: 8010, Size: 3}, promoted.Ports)

	posB, _, err := m.Position("B", now)
	require.NoError(t, err)
	assert.Equal(t, 1, rankOf(t, posB))
	assert.Empty(t, posB.ComputationKey)

	posC, _, err := m.Position("C", now)
	require.NoError(t, err)
	assert.Equal(t, 2, rankOf(t, posC))

	// The active head still occupies a slot in line.
	assert.Equal(t, domain.AddResultQueueFull, m.Enqueue("D", now))
}

func TestQueueManager_Duplicates(t *testing.T) {
	m := newTestManager(t, 10, 10)
	now := time.Now()

	assert.Equal(t, domain.AddResultAdded, m.Enqueue("A", now))
	assert.Equal(t, domain.AddResultAlreadyQueued, m.Enqueue("A", now))

	pos, _, err := m.Position("A", now)
	require.NoError(t, err)
	assert.True(t, pos.IsHead())

	// Active identifiers are rejected too.
	assert.Equal(t, domain.AddResultAlreadyQueued, m.Enqueue("A", now))

	finished, _, err := m.Retire("A", pos.ComputationKey)
	require.NoError(t, err)
	assert.True(t, finished)

	// Once retired the identifier may come back.
	assert.Equal(t, domain.AddResultAdded, m.Enqueue("A", now))
}

func TestQueueManager_PositionUnknown(t *testing.T) {
	m := newTestManager(t, 10, 10)
	pos, promoted, err := m.Position("ghost", time.Now())
	require.NoError(t, err)
	assert.Nil(t, pos.Position)
	assert.Nil(t, promoted)
}

func TestQueueManager_FIFOProperty(t *testing.T) {
	m := newTestManager(t, 100, 10)
	now := time.Unix(1700000000, 0)

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("client-%02d", i)
		require.Equal(t, domain.AddResultAdded, m.Enqueue(keys[i], now))
	}

	// Polling out of order never promotes anyone but the head.
	for i := len(keys) - 1; i >= 1; i-- {
		pos, promoted, err := m.Position(keys[i], now)
		require.NoError(t, err)
		assert.Nil(t, promoted)
		assert.Equal(t, i, rankOf(t, pos))
	}

	for round := 0; round < len(keys); round++ {
		pos, _, err := m.Position(keys[round], now)
		require.NoError(t, err)
		require.True(t, pos.IsHead(), "round %d", round)

		for j := round + 1; j < len(keys); j++ {
			p, _, err := m.Position(keys[j], now)
			require.NoError(t, err)
			assert.Equal(t, j-round, rankOf(t, p))
		}

		finished, _, err := m.Retire(keys[round], pos.ComputationKey)
		require.NoError(t, err)
		require.True(t, finished)
	}
	assert.Equal(t, 0, m.Len())
}

func TestQueueManager_ConsumePhases(t *testing.T) {
	m := newTestManager(t, 10, 10)
	now := time.Now()
	m.Enqueue("A", now)
	m.Enqueue("B", now)
	pos, _, _ := m.Position("A", now)
	key := pos.ComputationKey

	_, err := m.Consume("A", "wrong", domain.PhaseShareData, now)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = m.Consume("B", key, domain.PhaseShareData, now)
	assert.ErrorIs(t, err, domain.ErrNotActive, "queued but not active")

	s, err := m.Consume("A", key, domain.PhaseShareData, now)
	require.NoError(t, err)
	assert.True(t, s.SharedData)

	_, err = m.Consume("A", key, domain.PhaseShareData, now)
	assert.ErrorIs(t, err, domain.ErrPhaseConsumed)

	s, err = m.Consume("A", key, domain.PhaseQueryComputation, now)
	require.NoError(t, err)
	assert.True(t, s.QueriedComputation)

	// Validation stays idempotent while the session lives.
	assert.True(t, m.Validate("A", key))
	assert.True(t, m.Validate("A", key))
}

func TestQueueManager_HeadTimeoutEviction(t *testing.T) {
	m := newTestManager(t, 10, 10)
	start := time.Unix(1700000000, 0)
	m.Enqueue("A", start)
	m.Enqueue("B", start)

	posA, promotedA, err := m.Position("A", start)
	require.NoError(t, err)
	require.NotNil(t, promotedA)
	assert.Equal(t, domain.PortBlock{Base: 8010, Size: 3}, promotedA.Ports)

	// Before the deadline nothing happens.
	transitions, err := m.Sweep(start.Add(30 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, transitions)

	transitions, err = m.Sweep(start.Add(61 * time.Second))
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	tr := transitions[0]
	assert.Equal(t, domain.EvictHeadTimeout, tr.Reason)
	assert.Equal(t, "A", tr.Evicted.AccessKey)
	require.NotNil(t, tr.Promoted)
	assert.Equal(t, "B", tr.Promoted.AccessKey)

	// Hand-over: B never receives the block A was holding.
	assert.False(t, tr.Promoted.Ports.Overlaps(promotedA.Ports))
	assert.Equal(t, domain.PortBlock{Base: 8013, Size: 3}, tr.Promoted.Ports)

	assert.False(t, m.Validate("A", posA.ComputationKey))
	posB, _, err := m.Position("B", start.Add(62*time.Second))
	require.NoError(t, err)
	assert.True(t, posB.IsHead())
	assert.Equal(t, tr.Promoted.ComputationKey, posB.ComputationKey)

	// A finishing late is treated as already finished.
	finished, _, err := m.Retire("A", posA.ComputationKey)
	require.NoError(t, err)
	assert.True(t, finished)

	// A's old block went back to the pool.
	assert.Equal(t, 9, m.FreeBlocks())
}

func TestQueueManager_HeadTimeoutSingleBlock(t *testing.T) {
	m := newTestManager(t, 10, 1)
	start := time.Now()
	m.Enqueue("A", start)
	m.Enqueue("B", start)
	_, _, err := m.Position("A", start)
	require.NoError(t, err)

	transitions, err := m.Sweep(start.Add(2 * time.Minute))
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.NotNil(t, transitions[0].Promoted, "successor reuses the only block")
	assert.Equal(t, transitions[0].Evicted.Ports, transitions[0].Promoted.Ports)
}

func TestQueueManager_ConsumedHeadIsNotEvicted(t *testing.T) {
	m := newTestManager(t, 10, 10)
	m.cfg.MaxSessionDuration = 10 * time.Minute
	start := time.Now()
	m.Enqueue("A", start)
	pos, _, _ := m.Position("A", start)

	_, err := m.Consume("A", pos.ComputationKey, domain.PhaseShareData, start.Add(time.Second))
	require.NoError(t, err)

	transitions, err := m.Sweep(start.Add(5 * time.Minute))
	require.NoError(t, err)
	assert.Empty(t, transitions)
	assert.True(t, m.Validate("A", pos.ComputationKey))

	transitions, err = m.Sweep(start.Add(11 * time.Minute))
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.EvictSessionDeadline, transitions[0].Reason)
	assert.False(t, m.Validate("A", pos.ComputationKey))
}

func TestQueueManager_SweepPromotesIdleHead(t *testing.T) {
	m := newTestManager(t, 10, 10)
	now := time.Now()
	m.Enqueue("A", now)

	// A never polls; the sweep promotes it so its head timeout starts running.
	transitions, err := m.Sweep(now)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Nil(t, transitions[0].Evicted)
	assert.Equal(t, "A", transitions[0].Promoted.AccessKey)

	s, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "A", s.AccessKey)
}

func TestQueueManager_Snapshot(t *testing.T) {
	m := newTestManager(t, 10, 10)
	now := time.Now()
	m.Enqueue("A", now)
	m.Enqueue("B", now)
	_, _, err := m.Position("A", now)
	require.NoError(t, err)

	snap := m.Snapshot(now)
	assert.Equal(t, 2, snap.Len())
	require.NotNil(t, snap.Active)
	assert.Equal(t, "A", snap.Active.AccessKey)
	assert.Empty(t, snap.Active.ComputationKey)
	require.Len(t, snap.Waiting, 1)
	assert.Equal(t, "B", snap.Waiting[0].AccessKey)
	assert.Equal(t, 9, snap.FreePortBlocks)
}

func TestQueueManager_Status(t *testing.T) {
	m := newTestManager(t, 10, 10)
	now := time.Now()
	m.Enqueue("A", now)
	m.Enqueue("B", now)

	// Looking up status never promotes.
	st := m.Status("A")
	assert.Equal(t, domain.StateQueued, st.State)
	assert.Equal(t, 0, *st.Position)
	_, active := m.Active()
	assert.False(t, active)

	_, _, err := m.Position("A", now)
	require.NoError(t, err)

	st = m.Status("A")
	assert.Equal(t, domain.StateActive, st.State)
	require.NotNil(t, st.Session)
	assert.Empty(t, st.Session.ComputationKey)

	st = m.Status("B")
	assert.Equal(t, domain.StateQueued, st.State)
	assert.Equal(t, 1, *st.Position)

	assert.Equal(t, domain.StateAbsent, m.Status("Z").State)
	assert.Nil(t, m.Status("Z").Position)
}
