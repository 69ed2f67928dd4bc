package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aretw0/mpcgate/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Ledger implements ports.ContributionLedger using Redis.
//
// Layout under the prefix:
//
//	contribution:<secret_index>  JSON document
//	index                        ZSET of secret indexes scored by themselves
//	access_keys                  SET of contributing access keys
//	addresses                    SET of contributing addresses
type Ledger struct {
	client *backend.Client
	prefix string
}

type Option func(*Ledger)

// WithPrefix sets the key prefix for the ledger.
func WithPrefix(prefix string) Option {
	return func(l *Ledger) {
		l.prefix = prefix
	}
}

// New creates a new Redis ledger with options.
func New(address, password string, db int, opts ...Option) *Ledger {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis ledger from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Ledger {
	l := &Ledger{
		client: client,
		prefix: "mpcgate:",
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Ledger) key(secretIndex int) string {
	return l.prefix + "contribution:" + strconv.Itoa(secretIndex)
}

func (l *Ledger) indexKey() string {
	return l.prefix + "index"
}

func (l *Ledger) accessKeysKey() string {
	return l.prefix + "access_keys"
}

func (l *Ledger) addressesKey() string {
	return l.prefix + "addresses"
}

// Record persists the contribution atomically.
func (l *Ledger) Record(ctx context.Context, c domain.Contribution) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal contribution: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.Set(ctx, l.key(c.SecretIndex), data, 0)
	pipe.ZAdd(ctx, l.indexKey(), backend.Z{
		Score:  float64(c.SecretIndex),
		Member: strconv.Itoa(c.SecretIndex),
	})
	if !c.Failed {
		pipe.SAdd(ctx, l.accessKeysKey(), c.AccessKey)
		if c.Address != "" {
			pipe.SAdd(ctx, l.addressesKey(), c.Address)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record contribution: %w", err)
	}
	return nil
}

// Get loads the contribution recorded under a secret index.
func (l *Ledger) Get(ctx context.Context, secretIndex int) (domain.Contribution, error) {
	val, err := l.client.Get(ctx, l.key(secretIndex)).Result()
	if err != nil {
		if err == backend.Nil {
			return domain.Contribution{}, domain.ErrNotFound
		}
		return domain.Contribution{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var c domain.Contribution
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return domain.Contribution{}, fmt.Errorf("failed to unmarshal contribution: %w", err)
	}
	return c, nil
}

// HasAccessKey reports whether the access key contributed.
func (l *Ledger) HasAccessKey(ctx context.Context, accessKey string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.accessKeysKey(), accessKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query redis: %w", err)
	}
	return ok, nil
}

// HasAddress reports whether the address contributed.
func (l *Ledger) HasAddress(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, nil
	}
	ok, err := l.client.SIsMember(ctx, l.addressesKey(), address).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query redis: %w", err)
	}
	return ok, nil
}

// Count returns the number of recorded secret indexes.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	n, err := l.client.ZCard(ctx, l.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count contributions: %w", err)
	}
	return int(n), nil
}

// NextIndex returns one past the highest recorded secret index.
func (l *Ledger) NextIndex(ctx context.Context) (int, error) {
	top, err := l.client.ZRevRangeWithScores(ctx, l.indexKey(), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read highest secret index: %w", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return int(top[0].Score) + 1, nil
}

// List returns the recorded secret indexes in ascending order.
func (l *Ledger) List(ctx context.Context) ([]int, error) {
	members, err := l.client.ZRange(ctx, l.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	indexes := make([]int, 0, len(members))
	for _, m := range members {
		i, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt secret index %q: %w", m, err)
		}
		indexes = append(indexes, i)
	}
	return indexes, nil
}

// Ping checks connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (l *Ledger) Close() error {
	return l.client.Close()
}
