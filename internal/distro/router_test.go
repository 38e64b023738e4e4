package distro

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/rewarder"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const marketID = "mkt-1"

func newRouterFixture(t *testing.T, treasuryCut string) (*Router, *rewarder.Ledger, *bank.Memory) {
	t.Helper()
	b := bank.NewMemory()
	ledger := rewarder.NewLedger(marketID, "relay:"+marketID, b)
	return NewRouter(b, ledger, dec(treasuryCut), nil), ledger, b
}

func TestRouter_SplitsProceeds(t *testing.T) {
	r, ledger, b := newRouterFixture(t, "0.25")

	if err := b.Deposit("USDC", "distro:"+marketID, dec("200")); err != nil {
		t.Fatalf("seed proceeds: %v", err)
	}
	if err := r.Route(context.Background(), marketID, "USDC", dec("200")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if got := b.Balance("USDC", TreasuryAccount(marketID)); !got.Equal(dec("50")) {
		t.Errorf("treasury = %s, want 50", got)
	}
	if got := b.Balance("USDC", ledger.Account()); !got.Equal(dec("150")) {
		t.Errorf("reward pool = %s, want 150", got)
	}
	if got := b.Balance("USDC", "distro:"+marketID); !got.IsZero() {
		t.Errorf("proceeds remainder = %s, want 0", got)
	}
}

func TestRouter_ZeroCutSendsEverythingToRewards(t *testing.T) {
	r, ledger, b := newRouterFixture(t, "0")

	if err := b.Deposit("USDC", "distro:"+marketID, dec("100")); err != nil {
		t.Fatalf("seed proceeds: %v", err)
	}
	if err := r.Route(context.Background(), marketID, "USDC", dec("100")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if got := b.Balance("USDC", TreasuryAccount(marketID)); !got.IsZero() {
		t.Errorf("treasury = %s, want 0", got)
	}
	if got := b.Balance("USDC", ledger.Account()); !got.Equal(dec("100")) {
		t.Errorf("reward pool = %s, want 100", got)
	}
}

func TestRouter_ZeroAmountIsNoOp(t *testing.T) {
	r, _, b := newRouterFixture(t, "0.25")

	if err := r.Route(context.Background(), marketID, "USDC", decimal.Zero); err != nil {
		t.Fatalf("Route(0) failed: %v", err)
	}
	if got := b.Balance("USDC", TreasuryAccount(marketID)); !got.IsZero() {
		t.Errorf("treasury touched on zero route: %s", got)
	}
}

func TestRouter_UnwindsTreasuryOnRewardFailure(t *testing.T) {
	r, _, b := newRouterFixture(t, "0.25")

	// Only the treasury leg is covered; the reward leg must fail and the
	// cut must return to the proceeds account.
	if err := b.Deposit("USDC", "distro:"+marketID, dec("50")); err != nil {
		t.Fatalf("seed proceeds: %v", err)
	}
	if err := r.Route(context.Background(), marketID, "USDC", dec("200")); err == nil {
		t.Fatal("Route succeeded with underfunded proceeds account")
	}

	if got := b.Balance("USDC", "distro:"+marketID); !got.Equal(dec("50")) {
		t.Errorf("proceeds = %s after failed route, want 50", got)
	}
	if got := b.Balance("USDC", TreasuryAccount(marketID)); !got.IsZero() {
		t.Errorf("treasury = %s after failed route, want 0", got)
	}
}
