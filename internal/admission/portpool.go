package admission

import (
	"fmt"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// PortPool partitions [start, end) into fixed-size blocks and hands them out lowest-first.
type PortPool struct {
	start     int
	end       int
	blockSize int
	allocated []bool
	inUse     int
}

// NewPortPool creates a pool over [start, end). Trailing ports that do not fill a whole
// block are never handed out.
func NewPortPool(start, end, blockSize int) (*PortPool, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	if start <= 0 || end <= start {
		return nil, fmt.Errorf("invalid port range [%d, %d)", start, end)
	}
	count := (end - start) / blockSize
	if count == 0 {
		return nil, fmt.Errorf("port range [%d, %d) cannot hold a block of %d ports", start, end, blockSize)
	}
	return &PortPool{
		start:     start,
		end:       end,
		blockSize: blockSize,
		allocated: make([]bool, count),
	}, nil
}

// Allocate returns the lowest-numbered free block.
func (p *PortPool) Allocate() (domain.PortBlock, error) {
	for i, used := range p.allocated {
		if !used {
			p.allocated[i] = true
			p.inUse++
			return p.block(i), nil
		}
	}
	return domain.PortBlock{}, domain.ErrExhausted
}

// Release returns a block to the free set.
func (p *PortPool) Release(b domain.PortBlock) error {
	i, ok := p.index(b)
	if !ok || !p.allocated[i] {
		return fmt.Errorf("%w: %s", domain.ErrUnknownBlock, b)
	}
	p.allocated[i] = false
	p.inUse--
	return nil
}

// Free returns the number of blocks available for allocation.
func (p *PortPool) Free() int {
	return len(p.allocated) - p.inUse
}

// Capacity returns the total number of blocks.
func (p *PortPool) Capacity() int {
	return len(p.allocated)
}

// Allocated returns the blocks currently handed out, lowest first.
func (p *PortPool) Allocated() []domain.PortBlock {
	blocks := make([]domain.PortBlock, 0, p.inUse)
	for i, used := range p.allocated {
		if used {
			blocks = append(blocks, p.block(i))
		}
	}
	return blocks
}

func (p *PortPool) block(i int) domain.PortBlock {
	return domain.PortBlock{Base: p.start + i*p.blockSize, Size: p.blockSize}
}

func (p *PortPool) index(b domain.PortBlock) (int, bool) {
	if b.Size != p.blockSize || b.Base < p.start {
		return 0, false
	}
	offset := b.Base - p.start
	if offset%p.blockSize != 0 {
		return 0, false
	}
	i := offset / p.blockSize
	return i, i < len(p.allocated)
}
