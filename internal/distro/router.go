// Package distro forwards auction proceeds downstream: a treasury cut is
// retained and the remainder is notified to the reward ledger.
package distro

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/rewarder"
)

// TreasuryAccount returns the bank account a market's treasury cut lands in.
func TreasuryAccount(marketID string) string {
	return "treasury:" + marketID
}

// Router splits proceeds between the treasury and the reward ledger.
// Route is atomic: a failed split is unwound before returning.
type Router struct {
	bank        bank.Bank
	rewarder    *rewarder.Ledger
	treasuryCut decimal.Decimal // fraction in [0, 1)
	logger      *slog.Logger
}

// NewRouter creates a proceeds router for one market.
func NewRouter(b bank.Bank, rw *rewarder.Ledger, treasuryCut decimal.Decimal, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{bank: b, rewarder: rw, treasuryCut: treasuryCut, logger: logger}
}

// Route distributes amount of asset sitting in the market's proceeds
// account: treasuryCut stays with the treasury, the rest moves to the reward
// ledger and is notified for pro-rata accrual.
func (r *Router) Route(_ context.Context, marketID, asset string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return nil
	}

	from := "distro:" + marketID
	cut := amount.Mul(r.treasuryCut)
	rewards := amount.Sub(cut)

	if cut.Sign() > 0 {
		if err := r.bank.Transfer(asset, from, TreasuryAccount(marketID), cut); err != nil {
			return fmt.Errorf("treasury cut: %w", err)
		}
	}
	if rewards.Sign() > 0 {
		if err := r.bank.Transfer(asset, from, r.rewarder.Account(), rewards); err != nil {
			// Unwind the treasury leg so the caller sees no partial split.
			if cut.Sign() > 0 {
				if uerr := r.bank.Transfer(asset, TreasuryAccount(marketID), from, cut); uerr != nil {
					return fmt.Errorf("unwind treasury cut: %v: %w", uerr, err)
				}
			}
			return fmt.Errorf("reward transfer: %w", err)
		}
		r.rewarder.Notify(asset, rewards)
	}

	r.logger.Debug("proceeds routed",
		slog.String("market", marketID),
		slog.String("asset", asset),
		slog.String("treasury", cut.String()),
		slog.String("rewards", rewards.String()))

	return nil
}
