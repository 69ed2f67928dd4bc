package domain

import "fmt"

// PortBlock is the half-open range [Base, Base+Size) reserved for one session.
type PortBlock struct {
	Base int `json:"base"`
	Size int `json:"size"`
}

// End returns the first port after the block.
func (b PortBlock) End() int {
	return b.Base + b.Size
}

// Contains reports whether port falls inside the block.
func (b PortBlock) Contains(port int) bool {
	return port >= b.Base && port < b.End()
}

// Overlaps reports whether two blocks share at least one port.
func (b PortBlock) Overlaps(other PortBlock) bool {
	return b.Base < other.End() && other.Base < b.End()
}

// IsZero reports whether the block is unset.
func (b PortBlock) IsZero() bool {
	return b.Size == 0
}

// MPCPortBase is the first port used by the parties to talk to each other.
func (b PortBlock) MPCPortBase() int {
	return b.Base
}

// ClientPortBase is the first port the parties expose to the client.
// The upper half of the block is reserved for client connections.
func (b PortBlock) ClientPortBase() int {
	return b.Base + b.Size/2
}

func (b PortBlock) String() string {
	return fmt.Sprintf("[%d,%d)", b.Base, b.End())
}
