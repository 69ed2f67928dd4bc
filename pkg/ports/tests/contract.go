package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LedgerContractTest is a reusable test suite that verifies if an adapter complies with
// ports.ContributionLedger. The ledger must be empty when the suite starts.
func LedgerContractTest(t *testing.T, ledger ports.ContributionLedger) {
	t.Helper()
	ctx := context.Background()

	// 1. Empty ledger
	t.Run("Empty", func(t *testing.T) {
		n, err := ledger.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		next, err := ledger.NextIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, next)

		ok, err := ledger.HasAccessKey(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = ledger.HasAddress(ctx, "0xnobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	// 2. Record and lookup
	t.Run("Record", func(t *testing.T) {
		err := ledger.Record(ctx, domain.Contribution{
			AccessKey:   "voucher-1",
			Address:     "0xAAA",
			SecretIndex: 0,
			Commitment:  "c1",
			RecordedAt:  time.Now(),
		})
		require.NoError(t, err)

		ok, err := ledger.HasAccessKey(ctx, "voucher-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = ledger.HasAddress(ctx, "0xAAA")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = ledger.HasAddress(ctx, "0xBBB")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	// 3. Repeat contributors keep every index
	t.Run("Repeat Contributions", func(t *testing.T) {
		require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "voucher-2", Address: "0xBBB", SecretIndex: 1}))
		require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "voucher-2", Address: "0xBBB", SecretIndex: 2}))

		n, err := ledger.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		next, err := ledger.NextIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, next)
	})

	// 4. Failed dispatches hold their index only
	t.Run("Failed", func(t *testing.T) {
		require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "voucher-4", Address: "0xDDD", SecretIndex: 6, Failed: true}))

		ok, err := ledger.HasAccessKey(ctx, "voucher-4")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = ledger.HasAddress(ctx, "0xDDD")
		require.NoError(t, err)
		assert.False(t, ok)

		next, err := ledger.NextIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, next)
	})

	// 5. Queries without address
	t.Run("Empty Address", func(t *testing.T) {
		require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "voucher-3", SecretIndex: 3}))

		ok, err := ledger.HasAddress(ctx, "")
		require.NoError(t, err)
		assert.False(t, ok, "an empty address never matches")

		// A lower index never moves the counter back.
		next, err := ledger.NextIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, next)
	})
}
