package mcp

import (
	"context"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// Coordinator is the read-only surface of an in-process coordinator.
type Coordinator interface {
	Snapshot() domain.Snapshot
	SessionStatus(accessKey string) domain.Status
	ValidateComputationKey(accessKey, computationKey string) bool
}

// Local adapts an in-process coordinator to an Inspector.
func Local(c Coordinator) Inspector {
	return local{c}
}

type local struct {
	c Coordinator
}

func (l local) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return l.c.Snapshot(), nil
}

func (l local) SessionStatus(ctx context.Context, accessKey string) (domain.Status, error) {
	return l.c.SessionStatus(accessKey), nil
}

func (l local) ValidateComputationKey(ctx context.Context, accessKey, computationKey string) (bool, error) {
	return l.c.ValidateComputationKey(accessKey, computationKey), nil
}
