package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/domain"
)

// MarketStore provides access to markets storage.
type MarketStore interface {
	// Insert adds a new market. Returns ErrDuplicateKey if market_id exists.
	Insert(ctx context.Context, m *domain.Market) error

	// GetByID retrieves a market by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, marketID string) (*domain.Market, error)

	// List retrieves all markets, ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Market, error)

	// UpdateFinancials persists the mutable financials after a committed
	// operation. Returns ErrNotFound if the market does not exist.
	UpdateFinancials(ctx context.Context, marketID string, reserveBalance, mintedSupply decimal.Decimal, halted bool) error
}

// EpochStore provides access to the single current auction epoch per market.
type EpochStore interface {
	// Put inserts or replaces the market's current epoch.
	Put(ctx context.Context, e *domain.AuctionEpoch) error

	// GetByMarket retrieves the current epoch. Returns ErrNotFound if not exists.
	GetByMarket(ctx context.Context, marketID string) (*domain.AuctionEpoch, error)
}

// SettlementStore provides access to settlements storage. Append-only.
type SettlementStore interface {
	// Insert adds a new settlement. Returns ErrDuplicateKey if settlement_id exists.
	Insert(ctx context.Context, s *domain.Settlement) error

	// GetByID retrieves a settlement by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, settlementID string) (*domain.Settlement, error)

	// GetByMarket retrieves all settlements for a market, ordered by settled_at ASC.
	GetByMarket(ctx context.Context, marketID string) ([]*domain.Settlement, error)
}
