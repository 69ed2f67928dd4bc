package memory

import (
	"context"
	"sync"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
)

// Archive implements ports.CommitmentArchive in memory.
type Archive struct {
	records map[int]ports.CommitmentRecord
	mu      sync.RWMutex
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{records: make(map[int]ports.CommitmentRecord)}
}

func (a *Archive) Save(ctx context.Context, rec ports.CommitmentRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.SecretIndex] = rec
	return nil
}

func (a *Archive) Get(ctx context.Context, secretIndex int) (ports.CommitmentRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[secretIndex]
	if !ok {
		return ports.CommitmentRecord{}, domain.ErrNotFound
	}
	return rec, nil
}
