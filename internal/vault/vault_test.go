package vault

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// stubSink records fee credits.
type stubSink struct {
	credits []decimal.Decimal
}

func (s *stubSink) Account() string { return "feesink:mkt-1" }

func (s *stubSink) Credit(amount decimal.Decimal) {
	s.credits = append(s.credits, amount)
}

type vaultFixture struct {
	vault  *Vault
	market *domain.Market
	bank   *bank.Memory
	sink   *stubSink
	now    time.Time
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()

	f := &vaultFixture{
		bank: bank.NewMemory(),
		sink: &stubSink{},
		now:  time.Unix(1_700_000_000, 0),
	}
	f.market = &domain.Market{
		MarketID:       "mkt-1",
		BaseAsset:      "HONEY",
		ExchangeRate:   dec("10"),
		FeeFraction:    dec("0.01"),
		ReserveBalance: decimal.Zero,
		MintedSupply:   decimal.Zero,
	}
	f.vault = New(Options{
		Market: f.market,
		Bank:   f.bank,
		Fees:   f.sink,
		Clock:  func() time.Time { return f.now },
	})
	return f
}

func (f *vaultFixture) fund(t *testing.T, account, amount string) {
	t.Helper()
	if err := f.bank.Deposit(f.market.BaseAsset, account, dec(amount)); err != nil {
		t.Fatalf("fund %s: %v", account, err)
	}
}

func TestVault_MintFeeAndTruncation(t *testing.T) {
	f := newVaultFixture(t)
	f.fund(t, "user0", "100")

	// rate=10, fee=1%: 100 in -> fee 1, net 99, minted trunc(99/10) = 9.
	minted, err := f.vault.Mint("user0", "user0", dec("100"), decimal.Zero, time.Time{})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if !minted.Equal(dec("9")) {
		t.Errorf("minted = %s, want 9", minted)
	}

	if got := f.bank.Balance(f.market.TokenAsset(), "user0"); !got.Equal(dec("9")) {
		t.Errorf("token balance = %s, want 9", got)
	}
	if got := f.bank.Balance("HONEY", f.sink.Account()); !got.Equal(dec("1")) {
		t.Errorf("fee sink balance = %s, want 1", got)
	}
	if len(f.sink.credits) != 1 || !f.sink.credits[0].Equal(dec("1")) {
		t.Errorf("fee credits = %v, want [1]", f.sink.credits)
	}

	// Reserve holds the net; 0.9 of it is un-attributed truncation dust.
	if !f.market.ReserveBalance.Equal(dec("99")) {
		t.Errorf("ReserveBalance = %s, want 99", f.market.ReserveBalance)
	}
	if !f.market.MintedSupply.Equal(dec("9")) {
		t.Errorf("MintedSupply = %s, want 9", f.market.MintedSupply)
	}
}

func TestVault_MintRedeemRoundTrip(t *testing.T) {
	f := newVaultFixture(t)
	f.fund(t, "user0", "100")

	minted, err := f.vault.Mint("user0", "user0", dec("100"), decimal.Zero, time.Time{})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	baseOut, err := f.vault.Redeem("user0", minted)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	// 9 tokens * 10 = 90 back; the fee and dust stay behind.
	if !baseOut.Equal(dec("90")) {
		t.Errorf("baseOut = %s, want 90", baseOut)
	}
	if baseOut.GreaterThan(dec("100")) {
		t.Errorf("round trip returned more than deposited: %s", baseOut)
	}
	if !f.market.MintedSupply.IsZero() {
		t.Errorf("MintedSupply = %s, want 0", f.market.MintedSupply)
	}

	// Dust only ever adds slack, never a deficit.
	backing := f.market.MintedSupply.Mul(f.market.ExchangeRate)
	if f.market.ReserveBalance.LessThan(backing) {
		t.Errorf("reserve %s below backing %s", f.market.ReserveBalance, backing)
	}
}

func TestVault_ReserveInvariantAcrossOperations(t *testing.T) {
	f := newVaultFixture(t)
	f.fund(t, "user0", "1000")

	check := func(step string) {
		t.Helper()
		backing := f.market.MintedSupply.Mul(f.market.ExchangeRate)
		if f.market.ReserveBalance.LessThan(backing) {
			t.Fatalf("%s: reserve %s below backing %s", step, f.market.ReserveBalance, backing)
		}
	}

	amounts := []string{"100", "37", "250.5", "1"}
	for _, a := range amounts {
		if _, err := f.vault.Mint("user0", "user0", dec(a), decimal.Zero, time.Time{}); err != nil {
			t.Fatalf("Mint(%s) failed: %v", a, err)
		}
		check("mint " + a)
	}

	if _, err := f.vault.Redeem("user0", dec("20")); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	check("redeem 20")
}

func TestVault_MintValidationLeavesStateUntouched(t *testing.T) {
	f := newVaultFixture(t)
	f.fund(t, "user0", "5")

	cases := []struct {
		name    string
		amount  decimal.Decimal
		want    error
		caller  string
		minTok  decimal.Decimal
		expired bool
	}{
		{name: "zero amount", amount: decimal.Zero, want: domain.ErrZeroAmount, caller: "user0"},
		{name: "negative amount", amount: dec("-5"), want: domain.ErrZeroAmount, caller: "user0"},
		{name: "insufficient collateral", amount: dec("100"), want: domain.ErrInsufficientCollateral, caller: "user0"},
		{name: "slippage", amount: dec("5"), want: domain.ErrSlippage, caller: "user0", minTok: dec("1")},
		{name: "expired deadline", amount: dec("5"), want: domain.ErrExpired, caller: "user0", expired: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deadline := time.Time{}
			if tc.expired {
				deadline = f.now.Add(-time.Second)
			}

			_, err := f.vault.Mint(tc.caller, tc.caller, tc.amount, tc.minTok, deadline)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Mint error = %v, want %v", err, tc.want)
			}

			// Nothing moved.
			if got := f.bank.Balance("HONEY", "user0"); !got.Equal(dec("5")) {
				t.Errorf("caller balance = %s, want 5", got)
			}
			if !f.market.ReserveBalance.IsZero() || !f.market.MintedSupply.IsZero() {
				t.Errorf("market mutated: reserve=%s supply=%s", f.market.ReserveBalance, f.market.MintedSupply)
			}
			if len(f.sink.credits) != 0 {
				t.Errorf("fee credited on failed mint")
			}
		})
	}
}

func TestVault_MintUninitializedRate(t *testing.T) {
	f := newVaultFixture(t)
	f.market.ExchangeRate = decimal.Zero
	f.fund(t, "user0", "100")

	_, err := f.vault.Mint("user0", "user0", dec("100"), decimal.Zero, time.Time{})
	if !errors.Is(err, domain.ErrMarketNotInitialized) {
		t.Fatalf("Mint error = %v, want ErrMarketNotInitialized", err)
	}
}

func TestVault_RedeemValidation(t *testing.T) {
	f := newVaultFixture(t)
	f.fund(t, "user0", "100")
	if _, err := f.vault.Mint("user0", "user0", dec("100"), decimal.Zero, time.Time{}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if _, err := f.vault.Redeem("user0", decimal.Zero); !errors.Is(err, domain.ErrZeroAmount) {
		t.Errorf("Redeem(0) error = %v, want ErrZeroAmount", err)
	}
	if _, err := f.vault.Redeem("user0", dec("10")); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Redeem(10) error = %v, want ErrInsufficientBalance", err)
	}
	if _, err := f.vault.Redeem("user1", dec("1")); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Redeem by stranger error = %v, want ErrInsufficientBalance", err)
	}
}

func TestVault_ReserveUnderfundedHaltsMarket(t *testing.T) {
	f := newVaultFixture(t)
	f.fund(t, "user0", "100")
	if _, err := f.vault.Mint("user0", "user0", dec("100"), decimal.Zero, time.Time{}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	// Corrupt the books to simulate a prior accounting bug.
	f.market.ReserveBalance = dec("1")

	_, err := f.vault.Redeem("user0", dec("9"))
	if !errors.Is(err, domain.ErrReserveUnderfunded) {
		t.Fatalf("Redeem error = %v, want ErrReserveUnderfunded", err)
	}
	if !f.market.Halted {
		t.Fatal("market not halted after underfunded reserve")
	}

	// Every further mutating call is refused.
	if _, err := f.vault.Mint("user0", "user0", dec("1"), decimal.Zero, time.Time{}); !errors.Is(err, domain.ErrMarketHalted) {
		t.Errorf("Mint on halted market error = %v, want ErrMarketHalted", err)
	}
	if _, err := f.vault.Redeem("user0", dec("1")); !errors.Is(err, domain.ErrMarketHalted) {
		t.Errorf("Redeem on halted market error = %v, want ErrMarketHalted", err)
	}
}

func TestVault_MintTruncatesNearIntegerQuotient(t *testing.T) {
	f := newVaultFixture(t)
	f.market.ExchangeRate = dec("1")
	f.market.FeeFraction = decimal.Zero
	f.fund(t, "user0", "8.999999999999999999")

	// The quotient is a hair under 9 at more digits than decimal's division
	// precision. Rounding would mint a ninth, unbacked token.
	minted, err := f.vault.Mint("user0", "user0", dec("8.999999999999999999"), decimal.Zero, time.Time{})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if !minted.Equal(dec("8")) {
		t.Fatalf("minted = %s, want 8", minted)
	}

	backing := f.market.MintedSupply.Mul(f.market.ExchangeRate)
	if f.market.ReserveBalance.LessThan(backing) {
		t.Fatalf("reserve %s below backing %s", f.market.ReserveBalance, backing)
	}

	// The full supply remains redeemable.
	if _, err := f.vault.Redeem("user0", dec("8")); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
}

func TestVault_ZeroFeeMintsExactQuotient(t *testing.T) {
	f := newVaultFixture(t)
	f.market.FeeFraction = decimal.Zero
	f.fund(t, "user0", "100")

	minted, err := f.vault.Mint("user0", "user0", dec("100"), decimal.Zero, time.Time{})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if !minted.Equal(dec("10")) {
		t.Errorf("minted = %s, want 10", minted)
	}
	if len(f.sink.credits) != 0 {
		t.Errorf("fee credited with zero fee fraction")
	}
}
