package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/mpcgate/pkg/adapters/redis"
	"github.com/aretw0/mpcgate/pkg/domain"
	contract "github.com/aretw0/mpcgate/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisLedger_Contract(t *testing.T) {
	_, client := newMiniredis(t)
	contract.LedgerContractTest(t, redis.NewFromClient(client))
}

func TestRedisLedger_Prefix(t *testing.T) {
	mr, client := newMiniredis(t)

	// Custom Prefix
	ledger := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	err := ledger.Record(ctx, domain.Contribution{AccessKey: "voucher", Address: "0x1", SecretIndex: 4})
	require.NoError(t, err)

	// Verify keys in Redis directly
	assert.True(t, mr.Exists("custom:app:contribution:4"))
	assert.True(t, mr.Exists("custom:app:index"))
	assert.True(t, mr.Exists("custom:app:access_keys"))
	assert.True(t, mr.Exists("custom:app:addresses"))

	members, err := mr.SMembers("custom:app:addresses")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1"}, members)
}

func TestRedisLedger_GetAndList(t *testing.T) {
	_, client := newMiniredis(t)
	ledger := redis.NewFromClient(client)
	ctx := context.Background()

	_, err := ledger.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "a", SecretIndex: 10, Commitment: "ca"}))
	require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "b", SecretIndex: 2, Commitment: "cb"}))
	require.NoError(t, ledger.Record(ctx, domain.Contribution{AccessKey: "a", SecretIndex: 3, Commitment: "ca2"}))

	c, err := ledger.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "cb", c.Commitment)

	c, err = ledger.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "ca", c.Commitment, "a repeat contributor keeps both records")

	indexes, err := ledger.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 10}, indexes)
}

func TestRedisLedger_Unavailable(t *testing.T) {
	mr, client := newMiniredis(t)
	ledger := redis.NewFromClient(client)
	require.NoError(t, ledger.Ping(context.Background()))

	mr.Close()

	_, err := ledger.HasAddress(context.Background(), "0x1")
	assert.Error(t, err)
}
