package memory

import (
	"context"
	"sync"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// Ledger implements ports.ContributionLedger in memory.
// Safe for concurrent use.
type Ledger struct {
	byIndex   map[int]domain.Contribution
	keys      map[string]struct{}
	addresses map[string]struct{}
	next      int
	mu        sync.RWMutex
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byIndex:   make(map[int]domain.Contribution),
		keys:      make(map[string]struct{}),
		addresses: make(map[string]struct{}),
	}
}

// Record stores the contribution under its secret index.
func (l *Ledger) Record(ctx context.Context, c domain.Contribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byIndex[c.SecretIndex] = c
	if c.SecretIndex >= l.next {
		l.next = c.SecretIndex + 1
	}
	if c.Failed {
		return nil
	}
	l.keys[c.AccessKey] = struct{}{}
	if c.Address != "" {
		l.addresses[c.Address] = struct{}{}
	}
	return nil
}

// HasAccessKey reports whether the access key contributed.
func (l *Ledger) HasAccessKey(ctx context.Context, accessKey string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.keys[accessKey]
	return ok, nil
}

// HasAddress reports whether the address contributed.
func (l *Ledger) HasAddress(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.addresses[address]
	return ok, nil
}

// Count returns the number of recorded secret indexes.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byIndex), nil
}

// NextIndex returns one past the highest recorded secret index.
func (l *Ledger) NextIndex(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next, nil
}
