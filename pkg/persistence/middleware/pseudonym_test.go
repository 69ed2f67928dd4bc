package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/mpcgate/pkg/adapters/memory"
	"github.com/aretw0/mpcgate/pkg/domain"
	"github.com/aretw0/mpcgate/pkg/persistence/middleware"
	"github.com/aretw0/mpcgate/pkg/ports"
	contract "github.com/aretw0/mpcgate/pkg/ports/tests"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, middleware.KeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestPseudonymMiddleware_HidesIdentifiers(t *testing.T) {
	underlying := memory.NewLedger()
	mw, err := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	ledger := mw(underlying)

	ctx := context.Background()
	c := domain.Contribution{AccessKey: "voucher-1", Address: "0xabc", SecretIndex: 0, Commitment: "c0"}
	if err := ledger.Record(ctx, c); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// The caller's value is untouched.
	if c.Address != "0xabc" {
		t.Error("Middleware modified the contribution in memory!")
	}

	// The store only knows the pseudonyms.
	if ok, _ := underlying.HasAddress(ctx, "0xabc"); ok {
		t.Error("Raw address reached the store")
	}
	if ok, _ := underlying.HasAccessKey(ctx, "voucher-1"); ok {
		t.Error("Raw access key reached the store")
	}

	// Lookups through the middleware still work.
	if ok, err := ledger.HasAddress(ctx, "0xabc"); err != nil || !ok {
		t.Errorf("HasAddress = %v, %v; want true", ok, err)
	}
	if ok, err := ledger.HasAccessKey(ctx, "voucher-1"); err != nil || !ok {
		t.Errorf("HasAccessKey = %v, %v; want true", ok, err)
	}
	if ok, _ := ledger.HasAddress(ctx, "0xdef"); ok {
		t.Error("Unknown address reported as contributed")
	}
	if ok, _ := ledger.HasAddress(ctx, ""); ok {
		t.Error("Empty address reported as contributed")
	}

	n, err := ledger.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1", n, err)
	}
	if next, err := ledger.NextIndex(ctx); err != nil || next != 1 {
		t.Errorf("NextIndex = %d, %v; want 1", next, err)
	}
}

func TestPseudonymMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	contract.LedgerContractTest(t, mw(memory.NewLedger()))
}

func TestPseudonymMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewLedger()
	ctx := context.Background()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	// 1. Record with the old key
	oldMw, _ := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{ActiveKey: oldKey})
	if err := oldMw(underlying).Record(ctx, domain.Contribution{AccessKey: "k", Address: "0xabc"}); err != nil {
		t.Fatal(err)
	}

	// 2. Rotate: the old key becomes a fallback
	rotated, _ := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	if ok, _ := rotated(underlying).HasAddress(ctx, "0xabc"); !ok {
		t.Error("Address recorded under the fallback key was not found")
	}

	// 3. Without the fallback the entry is unreachable
	fresh, _ := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{ActiveKey: newKey})
	if ok, _ := fresh(underlying).HasAddress(ctx, "0xabc"); ok {
		t.Error("Address found without its key")
	}
}

func TestNewPseudonymMiddleware_RejectsShortKeys(t *testing.T) {
	if _, err := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{ActiveKey: []byte("short")}); err == nil {
		t.Error("Expected an error for a short active key")
	}
	_, err := middleware.NewPseudonymMiddleware(middleware.PseudonymConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if err == nil || !strings.Contains(err.Error(), "fallback key 0") {
		t.Errorf("Expected a fallback key error, got %v", err)
	}
}

func TestParseKeys(t *testing.T) {
	a, b := generateKey(t), generateKey(t)
	cfg, err := middleware.ParseKeys([]string{
		base64.StdEncoding.EncodeToString(a),
		" " + base64.StdEncoding.EncodeToString(b) + " ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(cfg.ActiveKey) != string(a) || len(cfg.FallbackKeys) != 1 || string(cfg.FallbackKeys[0]) != string(b) {
		t.Error("Keys were not split into active and fallback")
	}

	if _, err := middleware.ParseKeys(nil); err == nil {
		t.Error("Expected an error without keys")
	}
	if _, err := middleware.ParseKeys([]string{"!!!"}); err == nil {
		t.Error("Expected an error for invalid base64")
	}
}

type countingLedger struct {
	*memory.Ledger
	records int
}

func (c *countingLedger) Record(ctx context.Context, contrib domain.Contribution) error {
	c.records++
	return c.Ledger.Record(ctx, contrib)
}

func TestChain(t *testing.T) {
	inner := &countingLedger{Ledger: memory.NewLedger()}
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next ports.ContributionLedger) ports.ContributionLedger {
			order = append(order, name)
			return next
		}
	}

	ledger := middleware.Chain(inner, tag("outer"), tag("inner"))
	if err := ledger.Record(context.Background(), domain.Contribution{AccessKey: "k"}); err != nil {
		t.Fatal(err)
	}
	if inner.records != 1 {
		t.Errorf("records = %d; want 1", inner.records)
	}
	if strings.Join(order, ",") != "inner,outer" {
		t.Errorf("wrapping order = %v; want inner first", order)
	}
}
