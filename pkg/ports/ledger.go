package ports

import (
	"context"

	"github.com/aretw0/mpcgate/pkg/domain"
)

// ContributionLedger records every secret index handed to the parties.
// It backs the multiple-contribution policy and the secret index counter.
type ContributionLedger interface {
	// Record stores a contribution under its secret index. An access key may appear
	// under many indexes.
	Record(ctx context.Context, c domain.Contribution) error

	// HasAccessKey reports whether the access key contributed. Failed records do not count.
	HasAccessKey(ctx context.Context, accessKey string) (bool, error)

	// HasAddress reports whether the address contributed. Failed records do not count.
	HasAddress(ctx context.Context, address string) (bool, error)

	// Count returns the number of secret indexes recorded.
	Count(ctx context.Context) (int, error)

	// NextIndex returns one past the highest secret index recorded, or 0 for an empty ledger.
	NextIndex(ctx context.Context) (int, error)
}
