// Package vault implements the fixed-rate reserve vault: mints market tokens
// against base-asset collateral and redeems them back at the same rate.
package vault

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/domain"
)

// FeeSink receives the skim taken from each mint. The fee-flow auction
// implements it.
type FeeSink interface {
	// Account returns the bank account the fee is paid into.
	Account() string

	// Credit records amount accrued toward the next auction lot.
	Credit(amount decimal.Decimal)
}

// Vault holds one market's reserve and mints/burns its token.
// Not safe for concurrent use; the registry serializes all calls per market.
type Vault struct {
	market *domain.Market
	bank   bank.Bank
	fees   FeeSink
	clock  func() time.Time
	logger *slog.Logger
}

// Options contains configuration for creating a Vault.
type Options struct {
	Market *domain.Market
	Bank   bank.Bank
	Fees   FeeSink
	Clock  func() time.Time
	Logger *slog.Logger
}

// New creates a vault over an existing market record.
func New(opts Options) *Vault {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		market: opts.Market,
		bank:   opts.Bank,
		fees:   opts.Fees,
		clock:  clock,
		logger: logger,
	}
}

// ReserveAccount returns the bank account holding a market's reserve.
func ReserveAccount(marketID string) string {
	return "reserve:" + marketID
}

// Mint takes baseAmount collateral from caller, skims the fee fraction into
// the fee sink, and mints net/rate tokens (truncated toward zero) to
// recipient. The truncation residue stays in the reserve as un-attributed
// slack. minToken guards against unexpected truncation; a zero deadline
// disables the expiry check.
func (v *Vault) Mint(caller, recipient string, baseAmount, minToken decimal.Decimal, deadline time.Time) (decimal.Decimal, error) {
	m := v.market
	if m.Halted {
		return decimal.Zero, domain.ErrMarketHalted
	}
	if baseAmount.Sign() <= 0 {
		return decimal.Zero, domain.ErrZeroAmount
	}
	if m.ExchangeRate.Sign() <= 0 {
		return decimal.Zero, domain.ErrMarketNotInitialized
	}
	if !deadline.IsZero() && v.clock().After(deadline) {
		return decimal.Zero, domain.ErrExpired
	}

	fee := baseAmount.Mul(m.FeeFraction)
	net := baseAmount.Sub(fee)
	// QuoRem gives the true integer quotient. Div rounds at its division
	// precision, which can carry a near-integer quotient up and over-mint.
	minted, _ := net.QuoRem(m.ExchangeRate, 0)
	if minted.LessThan(minToken) {
		return decimal.Zero, domain.ErrSlippage
	}

	// Collateral in: the full amount lands in the reserve account, then the
	// fee skim moves onward to the accumulator. Nothing before this point
	// mutated state, so validation failures are free.
	if err := v.bank.Transfer(m.BaseAsset, caller, ReserveAccount(m.MarketID), baseAmount); err != nil {
		if errors.Is(err, bank.ErrInsufficientFunds) {
			return decimal.Zero, domain.ErrInsufficientCollateral
		}
		return decimal.Zero, fmt.Errorf("collateral transfer: %w", err)
	}
	if fee.Sign() > 0 {
		if err := v.bank.Transfer(m.BaseAsset, ReserveAccount(m.MarketID), v.fees.Account(), fee); err != nil {
			return decimal.Zero, fmt.Errorf("fee transfer: %w", err)
		}
	}
	if minted.Sign() > 0 {
		if err := v.bank.Deposit(m.TokenAsset(), recipient, minted); err != nil {
			return decimal.Zero, fmt.Errorf("mint tokens: %w", err)
		}
	}

	m.ReserveBalance = m.ReserveBalance.Add(net)
	m.MintedSupply = m.MintedSupply.Add(minted)
	if fee.Sign() > 0 {
		v.fees.Credit(fee)
	}

	v.logger.Debug("mint",
		slog.String("market", m.MarketID),
		slog.String("recipient", recipient),
		slog.String("base_in", baseAmount.String()),
		slog.String("fee", fee.String()),
		slog.String("minted", minted.String()))

	return minted, nil
}

// Redeem burns tokenAmount of the caller's market tokens and pays out
// tokenAmount * rate base asset from the reserve. No redeem fee.
func (v *Vault) Redeem(caller string, tokenAmount decimal.Decimal) (decimal.Decimal, error) {
	m := v.market
	if m.Halted {
		return decimal.Zero, domain.ErrMarketHalted
	}
	if tokenAmount.Sign() <= 0 {
		return decimal.Zero, domain.ErrZeroAmount
	}
	if v.bank.Balance(m.TokenAsset(), caller).LessThan(tokenAmount) {
		return decimal.Zero, domain.ErrInsufficientBalance
	}

	baseOut := tokenAmount.Mul(m.ExchangeRate)

	// Unreachable while the reserve invariant holds. If it fires, a prior
	// accounting bug exists: halt the market and refuse further mutation.
	if m.ReserveBalance.LessThan(baseOut) ||
		v.bank.Balance(m.BaseAsset, ReserveAccount(m.MarketID)).LessThan(baseOut) {
		m.Halted = true
		v.logger.Error("reserve underfunded, halting market",
			slog.String("market", m.MarketID),
			slog.String("reserve", m.ReserveBalance.String()),
			slog.String("required", baseOut.String()))
		return decimal.Zero, domain.ErrReserveUnderfunded
	}

	if err := v.bank.Withdraw(m.TokenAsset(), caller, tokenAmount); err != nil {
		return decimal.Zero, fmt.Errorf("burn tokens: %w", err)
	}
	if err := v.bank.Transfer(m.BaseAsset, ReserveAccount(m.MarketID), caller, baseOut); err != nil {
		return decimal.Zero, fmt.Errorf("reserve payout: %w", err)
	}

	m.ReserveBalance = m.ReserveBalance.Sub(baseOut)
	m.MintedSupply = m.MintedSupply.Sub(tokenAmount)

	v.logger.Debug("redeem",
		slog.String("market", m.MarketID),
		slog.String("caller", caller),
		slog.String("burned", tokenAmount.String()),
		slog.String("base_out", baseOut.String()))

	return baseOut, nil
}

// Market returns the vault's market record.
func (v *Vault) Market() *domain.Market {
	return v.market
}
