// Package relay holds the market registry: it creates markets, wires their
// downstream collaborators, and linearizes every mint, redeem, and buy
// against per-market state.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/domain"
	"relay-market-core/internal/feeflow"
	"relay-market-core/internal/observability"
	"relay-market-core/internal/rewarder"
	"relay-market-core/internal/storage"
	"relay-market-core/internal/vault"
)

// ErrInvalidParams is returned when market creation parameters fail validation.
var ErrInvalidParams = errors.New("invalid market parameters")

// ErrAlreadyWired is returned when Wire is called on a market that already
// has its collaborators set. Swapping in a fresh reward ledger would orphan
// existing stake records.
var ErrAlreadyWired = errors.New("market already wired")

// Stores groups the persistence backends the registry writes through to.
type Stores struct {
	Markets     storage.MarketStore
	Epochs      storage.EpochStore
	Settlements storage.SettlementStore
}

// Registry is the in-memory map from market_id to market runtime. Every
// market identifier is explicit; there is no "last deployed" lookup.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*runtime

	bank   bank.Bank
	stores Stores
	clock  func() time.Time
	logger *slog.Logger
}

// runtime aggregates one market's engines behind a single-writer lock.
// Holding mu for the whole operation is what makes mint/redeem/buy
// atomic and globally ordered per market.
type runtime struct {
	mu       sync.Mutex
	market   *domain.Market
	vault    *vault.Vault
	auction  *feeflow.Auction
	rewarder *rewarder.Ledger
	wired    bool
}

// Options contains configuration for creating a Registry.
type Options struct {
	Bank   bank.Bank
	Stores Stores
	Clock  func() time.Time
	Logger *slog.Logger
}

// New creates an empty registry.
func New(opts Options) *Registry {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		markets: make(map[string]*runtime),
		bank:    opts.Bank,
		stores:  opts.Stores,
		clock:   clock,
		logger:  logger,
	}
}

// CreateMarketParams are the creation-time parameters. The exchange rate and
// all auction parameters are fixed for the market's lifetime.
type CreateMarketParams struct {
	BaseAsset            string
	SettlementAsset      string // defaults to BaseAsset
	TokenName            string
	TokenSymbol          string
	InitialReserveTarget decimal.Decimal
	ExchangeRate         decimal.Decimal
	FeeFraction          decimal.Decimal
	Auction              domain.AuctionParams
}

// Validate checks the creation parameters.
func (p CreateMarketParams) Validate() error {
	switch {
	case p.BaseAsset == "":
		return fmt.Errorf("%w: base asset is required", ErrInvalidParams)
	case p.ExchangeRate.Sign() <= 0:
		return fmt.Errorf("%w: exchange rate must be positive", ErrInvalidParams)
	case p.FeeFraction.Sign() < 0 || p.FeeFraction.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: fee fraction must be in [0, 1)", ErrInvalidParams)
	case p.InitialReserveTarget.Sign() < 0:
		return fmt.Errorf("%w: initial reserve target must not be negative", ErrInvalidParams)
	case p.Auction.HalfLife <= 0:
		return fmt.Errorf("%w: half life must be positive", ErrInvalidParams)
	case p.Auction.PriceFloor.Sign() < 0:
		return fmt.Errorf("%w: price floor must not be negative", ErrInvalidParams)
	case p.Auction.StartPrice.LessThan(p.Auction.PriceFloor):
		return fmt.Errorf("%w: start price must not be below the floor", ErrInvalidParams)
	case p.Auction.ResetMultiplier.Sign() <= 0:
		return fmt.Errorf("%w: reset multiplier must be positive", ErrInvalidParams)
	}
	return nil
}

// CreateMarket deploys a new market and returns its stable identifier.
// The market accepts no mint or buy until Wire is called.
func (r *Registry) CreateMarket(ctx context.Context, p CreateMarketParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	settlementAsset := p.SettlementAsset
	if settlementAsset == "" {
		settlementAsset = p.BaseAsset
	}

	now := r.clock()
	m := &domain.Market{
		MarketID:             uuid.NewString(),
		BaseAsset:            p.BaseAsset,
		SettlementAsset:      settlementAsset,
		TokenName:            p.TokenName,
		TokenSymbol:          p.TokenSymbol,
		ExchangeRate:         p.ExchangeRate,
		FeeFraction:          p.FeeFraction,
		InitialReserveTarget: p.InitialReserveTarget,
		Auction:              p.Auction,
		ReserveBalance:       decimal.Zero,
		MintedSupply:         decimal.Zero,
		CreatedAt:            now,
	}

	rt := r.buildRuntime(m, nil)

	if err := r.stores.Markets.Insert(ctx, m); err != nil {
		return "", fmt.Errorf("persist market: %w", err)
	}
	epoch := rt.auction.Epoch()
	if err := r.stores.Epochs.Put(ctx, &epoch); err != nil {
		return "", fmt.Errorf("persist epoch: %w", err)
	}

	r.mu.Lock()
	r.markets[m.MarketID] = rt
	r.mu.Unlock()

	observability.RecordMarketCreated()
	r.logger.Info("market created",
		slog.String("market", m.MarketID),
		slog.String("symbol", m.TokenSymbol),
		slog.String("base_asset", m.BaseAsset),
		slog.String("exchange_rate", m.ExchangeRate.String()))

	return m.MarketID, nil
}

// Load restores all persisted markets into the registry. Markets come back
// unwired; the caller re-wires each before serving traffic.
func (r *Registry) Load(ctx context.Context) error {
	markets, err := r.stores.Markets.List(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	for _, m := range markets {
		epoch, err := r.stores.Epochs.GetByMarket(ctx, m.MarketID)
		if err != nil {
			return fmt.Errorf("load epoch for %s: %w", m.MarketID, err)
		}
		rt := r.buildRuntime(m, epoch)

		r.mu.Lock()
		r.markets[m.MarketID] = rt
		r.mu.Unlock()
	}

	r.logger.Info("registry loaded", slog.Int("markets", len(markets)))
	return nil
}

// buildRuntime assembles the engines for one market.
func (r *Registry) buildRuntime(m *domain.Market, epoch *domain.AuctionEpoch) *runtime {
	auction := feeflow.New(feeflow.Options{
		Market: m,
		Epoch:  epoch,
		Bank:   r.bank,
		Clock:  r.clock,
		Logger: r.logger,
	})
	v := vault.New(vault.Options{
		Market: m,
		Bank:   r.bank,
		Fees:   auction,
		Clock:  r.clock,
		Logger: r.logger,
	})
	return &runtime{market: m, vault: v, auction: auction}
}

// Wire sets a market's downstream collaborators, exactly once per runtime.
// Mint/buy before wiring fail with ErrMarketNotInitialized; wiring an
// already-wired market fails with ErrAlreadyWired. Markets restored by Load
// come back unwired and accept one Wire each.
func (r *Registry) Wire(marketID string, router feeflow.Router, ledger *rewarder.Ledger) error {
	rt, err := r.runtime(marketID)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.wired {
		return ErrAlreadyWired
	}

	rt.auction.SetRouter(router)
	rt.rewarder = ledger
	rt.wired = true

	r.logger.Info("market wired", slog.String("market", marketID))
	return nil
}

// Mint converts caller collateral into market tokens for recipient.
func (r *Registry) Mint(ctx context.Context, marketID, caller, recipient string, baseAmount, minToken decimal.Decimal, deadline time.Time) (decimal.Decimal, error) {
	rt, err := r.runtime(marketID)
	if err != nil {
		return decimal.Zero, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !rt.wired {
		observability.RecordOperationError("mint", errKind(domain.ErrMarketNotInitialized))
		return decimal.Zero, domain.ErrMarketNotInitialized
	}

	minted, err := rt.vault.Mint(caller, recipient, baseAmount, minToken, deadline)
	if err != nil {
		observability.RecordOperationError("mint", errKind(err))
		return decimal.Zero, err
	}

	if err := r.persist(ctx, rt); err != nil {
		return decimal.Zero, err
	}
	observability.RecordMint(marketID)
	return minted, nil
}

// Redeem burns caller tokens and returns base asset from the reserve.
func (r *Registry) Redeem(ctx context.Context, marketID, caller string, tokenAmount decimal.Decimal) (decimal.Decimal, error) {
	rt, err := r.runtime(marketID)
	if err != nil {
		return decimal.Zero, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	baseOut, err := rt.vault.Redeem(caller, tokenAmount)
	if err != nil {
		observability.RecordOperationError("redeem", errKind(err))
		if errors.Is(err, domain.ErrReserveUnderfunded) {
			// The halt itself must survive a restart.
			observability.RecordHalt()
			if perr := r.persist(ctx, rt); perr != nil {
				r.logger.Error("persist halt", slog.String("market", marketID), slog.Any("error", perr))
			}
		}
		return decimal.Zero, err
	}

	if err := r.persist(ctx, rt); err != nil {
		return decimal.Zero, err
	}
	observability.RecordRedeem(marketID)
	return baseOut, nil
}

// Buy sells the current auction lot to buyer at the decayed price.
func (r *Registry) Buy(ctx context.Context, marketID, buyer string, maxPrice decimal.Decimal) (*domain.Settlement, error) {
	rt, err := r.runtime(marketID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !rt.wired {
		observability.RecordOperationError("buy", errKind(domain.ErrMarketNotInitialized))
		return nil, domain.ErrMarketNotInitialized
	}

	settlement, err := rt.auction.Buy(ctx, buyer, maxPrice)
	if err != nil {
		observability.RecordOperationError("buy", errKind(err))
		if errors.Is(err, domain.ErrRoutingFailed) {
			observability.RecordRoutingFailure()
		}
		if errors.Is(err, domain.ErrReserveUnderfunded) {
			// The halt itself must survive a restart.
			observability.RecordHalt()
			if perr := r.persist(ctx, rt); perr != nil {
				r.logger.Error("persist halt", slog.String("market", marketID), slog.Any("error", perr))
			}
		}
		return nil, err
	}

	if err := r.stores.Settlements.Insert(ctx, settlement); err != nil {
		return nil, fmt.Errorf("persist settlement: %w", err)
	}
	if err := r.persist(ctx, rt); err != nil {
		return nil, err
	}

	observability.RecordSettlement(marketID)
	observability.UpdateAuctionGauges(marketID,
		settlement.PricePaid.InexactFloat64(),
		rt.auction.Epoch().LotAmount.InexactFloat64(),
		rt.auction.Epoch().PendingAccrual.InexactFloat64())

	return settlement, nil
}

// Quote is a read-only snapshot of a market's auction state.
type Quote struct {
	MarketID       string          `json:"market_id"`
	EpochID        int64           `json:"epoch_id"`
	Price          decimal.Decimal `json:"price"`
	LotAmount      decimal.Decimal `json:"lot_amount"`
	PendingAccrual decimal.Decimal `json:"pending_accrual"`
	AsOf           time.Time       `json:"as_of"`
}

// Quote returns the current auction price and lot without mutating anything.
func (r *Registry) Quote(marketID string) (*Quote, error) {
	rt, err := r.runtime(marketID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	price, lot := rt.auction.Quote()
	epoch := rt.auction.Epoch()
	return &Quote{
		MarketID:       marketID,
		EpochID:        epoch.EpochID,
		Price:          price,
		LotAmount:      lot,
		PendingAccrual: epoch.PendingAccrual,
		AsOf:           r.clock(),
	}, nil
}

// Market returns a copy of a market's current state.
func (r *Registry) Market(marketID string) (*domain.Market, error) {
	rt, err := r.runtime(marketID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	copy := *rt.market
	return &copy, nil
}

// Markets returns copies of all registered markets.
func (r *Registry) Markets() []*domain.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Market, 0, len(r.markets))
	for _, rt := range r.markets {
		rt.mu.Lock()
		copy := *rt.market
		rt.mu.Unlock()
		result = append(result, &copy)
	}
	return result
}

// Rewarder returns a market's reward ledger, if wired.
func (r *Registry) Rewarder(marketID string) (*rewarder.Ledger, error) {
	rt, err := r.runtime(marketID)
	if err != nil {
		return nil, err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.rewarder == nil {
		return nil, domain.ErrMarketNotInitialized
	}
	return rt.rewarder, nil
}

// Settlements returns a market's settlement history.
func (r *Registry) Settlements(ctx context.Context, marketID string) ([]*domain.Settlement, error) {
	if _, err := r.runtime(marketID); err != nil {
		return nil, err
	}
	return r.stores.Settlements.GetByMarket(ctx, marketID)
}

// runtime looks up a market runtime by id.
func (r *Registry) runtime(marketID string) (*runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.markets[marketID]
	if !ok {
		return nil, domain.ErrMarketNotInitialized
	}
	return rt, nil
}

// persist writes a market's financials and current epoch through to storage.
// Runtime state is authoritative; persistence records the committed result.
// Assumes the runtime lock is held.
func (r *Registry) persist(ctx context.Context, rt *runtime) error {
	m := rt.market
	if err := r.stores.Markets.UpdateFinancials(ctx, m.MarketID, m.ReserveBalance, m.MintedSupply, m.Halted); err != nil {
		return fmt.Errorf("persist market financials: %w", err)
	}
	epoch := rt.auction.Epoch()
	if err := r.stores.Epochs.Put(ctx, &epoch); err != nil {
		return fmt.Errorf("persist epoch: %w", err)
	}
	observability.UpdateVaultGauges(m.MarketID, m.ReserveBalance.InexactFloat64(), m.MintedSupply.InexactFloat64())
	return nil
}

// errKind maps operation errors to metric label values.
func errKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, domain.ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrMarketNotInitialized):
		return "not_initialized"
	case errors.Is(err, domain.ErrPriceExceeded):
		return "price_exceeded"
	case errors.Is(err, domain.ErrEmptyLot):
		return "empty_lot"
	case errors.Is(err, domain.ErrSlippage):
		return "slippage"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case errors.Is(err, domain.ErrRoutingFailed):
		return "routing_failed"
	case errors.Is(err, domain.ErrMarketHalted):
		return "halted"
	case errors.Is(err, domain.ErrReserveUnderfunded):
		return "reserve_underfunded"
	default:
		return "internal"
	}
}
