package ports

import (
	"context"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// PartyClient is the coordinator's view of one computation party.
type PartyClient interface {
	// ID returns the party index, matching its position in the party list.
	ID() int

	// Cert returns the party certificate.
	Cert(ctx context.Context) (domain.PartyCert, error)

	// ShareData asks the party to run the engine for one contribution.
	ShareData(ctx context.Context, req domain.ShareDataMPCRequest) (domain.ShareDataMPCResponse, error)

	// QueryComputation asks the party to run the engine for one result query.
	QueryComputation(ctx context.Context, req domain.QueryComputationMPCRequest) error
}
