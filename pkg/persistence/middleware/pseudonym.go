package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/ports"
)

// KeySize is the length of a pseudonymization key.
const KeySize = 32

// PseudonymConfig holds the keys used to hash identifiers.
type PseudonymConfig struct {
	// ActiveKey hashes everything that is recorded.
	ActiveKey []byte

	// FallbackKeys are tried on lookups so entries recorded before a rotation are still found.
	FallbackKeys [][]byte
}

type pseudonymMiddleware struct {
	next   ports.ContributionLedger
	config PseudonymConfig
}

// NewPseudonymMiddleware creates a middleware that replaces access keys and addresses with
// their HMAC-SHA256 before they reach the store. Lookups hash the same way, so the
// contribution policy keeps working while the store never sees an Ethereum address.
func NewPseudonymMiddleware(config PseudonymConfig) (Middleware, error) {
	if len(config.ActiveKey) != KeySize {
		return nil, fmt.Errorf("active key must be %d bytes, got %d", KeySize, len(config.ActiveKey))
	}
	for i, k := range config.FallbackKeys {
		if len(k) != KeySize {
			return nil, fmt.Errorf("fallback key %d must be %d bytes, got %d", i, KeySize, len(k))
		}
	}
	return func(next ports.ContributionLedger) ports.ContributionLedger {
		return &pseudonymMiddleware{next: next, config: config}
	}, nil
}

// ParseKeys decodes base64 keys. The first one becomes the active key.
func ParseKeys(encoded []string) (PseudonymConfig, error) {
	var cfg PseudonymConfig
	for i, s := range encoded {
		k, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return PseudonymConfig{}, fmt.Errorf("ledger key %d is not valid base64: %w", i, err)
		}
		if i == 0 {
			cfg.ActiveKey = k
		} else {
			cfg.FallbackKeys = append(cfg.FallbackKeys, k)
		}
	}
	if cfg.ActiveKey == nil {
		return PseudonymConfig{}, errors.New("no ledger key given")
	}
	return cfg, nil
}

func (m *pseudonymMiddleware) Record(ctx context.Context, c domain.Contribution) error {
	c.AccessKey = pseudonym(m.config.ActiveKey, c.AccessKey)
	if c.Address != "" {
		c.Address = pseudonym(m.config.ActiveKey, c.Address)
	}
	return m.next.Record(ctx, c)
}

func (m *pseudonymMiddleware) HasAccessKey(ctx context.Context, accessKey string) (bool, error) {
	return m.lookup(ctx, accessKey, m.next.HasAccessKey)
}

func (m *pseudonymMiddleware) HasAddress(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, nil
	}
	return m.lookup(ctx, address, m.next.HasAddress)
}

// Secret indexes are not identifiers, so counting passes through.
func (m *pseudonymMiddleware) Count(ctx context.Context) (int, error) {
	return m.next.Count(ctx)
}

func (m *pseudonymMiddleware) NextIndex(ctx context.Context) (int, error) {
	return m.next.NextIndex(ctx)
}

func (m *pseudonymMiddleware) lookup(ctx context.Context, id string, has func(context.Context, string) (bool, error)) (bool, error) {
	for _, key := range m.keys() {
		ok, err := has(ctx, pseudonym(key, id))
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *pseudonymMiddleware) keys() [][]byte {
	return append([][]byte{m.config.ActiveKey}, m.config.FallbackKeys...)
}

func pseudonym(key []byte, id string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
