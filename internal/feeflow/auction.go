// Package feeflow implements the continuous Dutch-auction fee monetizer:
// accrued protocol revenue is sold as one atomic lot at a price that decays
// exponentially since the last sale, and proceeds are pushed downstream.
package feeflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/domain"
)

// Router receives auction proceeds. Route must be atomic: on error it must
// leave no partial movement behind, because the auction refunds the buyer
// and forgets the purchase ever happened.
type Router interface {
	Route(ctx context.Context, marketID, asset string, amount decimal.Decimal) error
}

// Auction is one market's fee-flow auction: the current epoch plus the
// pending accrual buffer feeding the next one.
// Not safe for concurrent use; the registry serializes all calls per market.
type Auction struct {
	market *domain.Market
	epoch  *domain.AuctionEpoch
	bank   bank.Bank
	router Router
	clock  func() time.Time
	logger *slog.Logger
}

// Options contains configuration for creating an Auction.
type Options struct {
	Market *domain.Market
	Epoch  *domain.AuctionEpoch // nil starts a fresh epoch 1 with an empty lot
	Bank   bank.Bank
	Router Router // may be wired later via SetRouter
	Clock  func() time.Time
	Logger *slog.Logger
}

// New creates the auction for a market.
func New(opts Options) *Auction {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	epoch := opts.Epoch
	if epoch == nil {
		epoch = &domain.AuctionEpoch{
			MarketID:       opts.Market.MarketID,
			EpochID:        1,
			LotAmount:      decimal.Zero,
			StartPrice:     opts.Market.Auction.StartPrice,
			StartTime:      clock(),
			PendingAccrual: decimal.Zero,
		}
	}

	return &Auction{
		market: opts.Market,
		epoch:  epoch,
		bank:   opts.Bank,
		router: opts.Router,
		clock:  clock,
		logger: logger,
	}
}

// AccumulatorAccount returns the bank account the fee accumulator lives in.
func AccumulatorAccount(marketID string) string {
	return "feeflow:" + marketID
}

// ProceedsAccount returns the bank account buy payments land in before the
// router distributes them.
func ProceedsAccount(marketID string) string {
	return "distro:" + marketID
}

// SetRouter wires the downstream proceeds router. Must be called before the
// first Buy.
func (a *Auction) SetRouter(r Router) {
	a.router = r
}

// Account implements vault.FeeSink.
func (a *Auction) Account() string {
	return AccumulatorAccount(a.market.MarketID)
}

// Credit implements vault.FeeSink: fee skims accrue into the pending buffer,
// never into the current epoch's lot. An idle epoch (empty lot) has nothing
// to sell, so on first credit the buffer promotes into a fresh epoch
// immediately; from then on there is always a lot available for purchase.
func (a *Auction) Credit(amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	a.epoch.PendingAccrual = a.epoch.PendingAccrual.Add(amount)
	if a.epoch.LotAmount.IsZero() {
		a.rollEpoch(a.epoch.StartPrice, a.clock())
	}
}

// Epoch returns a copy of the current epoch state.
func (a *Auction) Epoch() domain.AuctionEpoch {
	return *a.epoch
}

// Quote returns the current price and lot without mutating anything.
func (a *Auction) Quote() (price, lot decimal.Decimal) {
	price = PriceAt(a.epoch.StartPrice, a.market.Auction.PriceFloor,
		a.epoch.StartTime, a.market.Auction.HalfLife, a.clock())
	return price, a.epoch.LotAmount
}

// Buy sells the entire current lot to buyer at the current decayed price.
// The buyer pays in the settlement asset; proceeds are routed downstream
// atomically, and the purchase rolls back entirely if routing fails. On
// success the epoch resets: the pending buffer becomes the next lot and the
// next start price is max(floor, pricePaid * resetMultiplier).
func (a *Auction) Buy(ctx context.Context, buyer string, maxPrice decimal.Decimal) (*domain.Settlement, error) {
	m := a.market
	if m.Halted {
		return nil, domain.ErrMarketHalted
	}
	if a.router == nil {
		return nil, domain.ErrMarketNotInitialized
	}

	now := a.clock()
	epoch := a.epoch
	if epoch.LotAmount.IsZero() {
		return nil, domain.ErrEmptyLot
	}

	price := PriceAt(epoch.StartPrice, m.Auction.PriceFloor, epoch.StartTime, m.Auction.HalfLife, now)
	if price.GreaterThan(maxPrice) {
		return nil, domain.ErrPriceExceeded
	}

	// Payment and routing form one failure unit. The payment is parked in
	// the proceeds account and refunded if the router rejects it; only once
	// both have succeeded does the lot leave the accumulator. Routing
	// happens exactly once per settlement, even at a zero price.
	if price.Sign() > 0 {
		if err := a.bank.Transfer(m.SettlementAsset, buyer, ProceedsAccount(m.MarketID), price); err != nil {
			if errors.Is(err, bank.ErrInsufficientFunds) {
				return nil, domain.ErrInsufficientCollateral
			}
			return nil, fmt.Errorf("collect payment: %w", err)
		}
	}
	if err := a.router.Route(ctx, m.MarketID, m.SettlementAsset, price); err != nil {
		if price.Sign() > 0 {
			if rerr := a.bank.Transfer(m.SettlementAsset, ProceedsAccount(m.MarketID), buyer, price); rerr != nil {
				return nil, fmt.Errorf("refund after routing failure: %v: %w", rerr, domain.ErrRoutingFailed)
			}
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRoutingFailed, err)
	}

	if err := a.bank.Transfer(m.BaseAsset, AccumulatorAccount(m.MarketID), buyer, epoch.LotAmount); err != nil {
		// The accumulator always holds the lot; reaching this is an
		// accounting bug on par with an underfunded reserve.
		m.Halted = true
		return nil, fmt.Errorf("lot payout: %v: %w", err, domain.ErrReserveUnderfunded)
	}

	settlement := &domain.Settlement{
		SettlementID: uuid.NewString(),
		MarketID:     m.MarketID,
		EpochID:      epoch.EpochID,
		Buyer:        buyer,
		LotAmount:    epoch.LotAmount,
		PricePaid:    price,
		SettledAt:    now,
	}

	a.rollEpoch(price.Mul(m.Auction.ResetMultiplier), now)

	a.logger.Info("auction settled",
		slog.String("market", m.MarketID),
		slog.Int64("epoch", settlement.EpochID),
		slog.String("buyer", buyer),
		slog.String("lot", settlement.LotAmount.String()),
		slog.String("price_paid", price.String()))

	return settlement, nil
}

// rollEpoch supersedes the current epoch: the pending buffer becomes the new
// lot and the start price is clamped to the floor.
func (a *Auction) rollEpoch(startPrice decimal.Decimal, now time.Time) {
	prev := a.epoch
	a.epoch = &domain.AuctionEpoch{
		MarketID:       prev.MarketID,
		EpochID:        prev.EpochID + 1,
		LotAmount:      prev.PendingAccrual,
		StartPrice:     decimal.Max(a.market.Auction.PriceFloor, startPrice),
		StartTime:      now,
		PendingAccrual: decimal.Zero,
	}
}
