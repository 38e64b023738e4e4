package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"relay-market-core/internal/domain"
	"relay-market-core/internal/storage"
)

// MarketStore implements storage.MarketStore using PostgreSQL.
// Decimals travel as their string round-trip into NUMERIC columns.
type MarketStore struct {
	pool *Pool
}

// NewMarketStore creates a new MarketStore.
func NewMarketStore(pool *Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

const marketColumns = `
	market_id, base_asset, settlement_asset, token_name, token_symbol,
	exchange_rate::text, fee_fraction::text, initial_reserve_target::text,
	start_price::text, price_floor::text, half_life_ms, reset_multiplier::text,
	reserve_balance::text, minted_supply::text, halted, created_at
`

// Insert adds a new market. Returns ErrDuplicateKey if market_id exists.
func (s *MarketStore) Insert(ctx context.Context, m *domain.Market) error {
	query := `
		INSERT INTO markets (
			market_id, base_asset, settlement_asset, token_name, token_symbol,
			exchange_rate, fee_fraction, initial_reserve_target,
			start_price, price_floor, half_life_ms, reset_multiplier,
			reserve_balance, minted_supply, halted, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		m.MarketID,
		m.BaseAsset,
		m.SettlementAsset,
		m.TokenName,
		m.TokenSymbol,
		m.ExchangeRate.String(),
		m.FeeFraction.String(),
		m.InitialReserveTarget.String(),
		m.Auction.StartPrice.String(),
		m.Auction.PriceFloor.String(),
		m.Auction.HalfLife.Milliseconds(),
		m.Auction.ResetMultiplier.String(),
		m.ReserveBalance.String(),
		m.MintedSupply.String(),
		m.Halted,
		m.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert market: %w", err)
	}
	return nil
}

// GetByID retrieves a market by its ID. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByID(ctx context.Context, marketID string) (*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE market_id = $1`

	row := s.pool.QueryRow(ctx, query, marketID)
	m, err := scanMarket(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get market by id: %w", err)
	}
	return m, nil
}

// List retrieves all markets, ordered by created_at ASC.
func (s *MarketStore) List(ctx context.Context) ([]*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets ORDER BY created_at ASC, market_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var result []*domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpdateFinancials persists the mutable financials after a committed operation.
func (s *MarketStore) UpdateFinancials(ctx context.Context, marketID string, reserveBalance, mintedSupply decimal.Decimal, halted bool) error {
	query := `
		UPDATE markets
		SET reserve_balance = $2, minted_supply = $3, halted = $4
		WHERE market_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, marketID, reserveBalance.String(), mintedSupply.String(), halted)
	if err != nil {
		return fmt.Errorf("update market financials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanMarket scans a market row in marketColumns order.
func scanMarket(row pgx.Row) (*domain.Market, error) {
	var (
		m          domain.Market
		rate       string
		fee        string
		target     string
		startPrice string
		floor      string
		halfLifeMs int64
		mult       string
		reserve    string
		supply     string
	)

	err := row.Scan(
		&m.MarketID,
		&m.BaseAsset,
		&m.SettlementAsset,
		&m.TokenName,
		&m.TokenSymbol,
		&rate,
		&fee,
		&target,
		&startPrice,
		&floor,
		&halfLifeMs,
		&mult,
		&reserve,
		&supply,
		&m.Halted,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse exchange_rate: %w", err)
	}
	if m.FeeFraction, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee_fraction: %w", err)
	}
	if m.InitialReserveTarget, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("parse initial_reserve_target: %w", err)
	}
	if m.Auction.StartPrice, err = decimal.NewFromString(startPrice); err != nil {
		return nil, fmt.Errorf("parse start_price: %w", err)
	}
	if m.Auction.PriceFloor, err = decimal.NewFromString(floor); err != nil {
		return nil, fmt.Errorf("parse price_floor: %w", err)
	}
	if m.Auction.ResetMultiplier, err = decimal.NewFromString(mult); err != nil {
		return nil, fmt.Errorf("parse reset_multiplier: %w", err)
	}
	if m.ReserveBalance, err = decimal.NewFromString(reserve); err != nil {
		return nil, fmt.Errorf("parse reserve_balance: %w", err)
	}
	if m.MintedSupply, err = decimal.NewFromString(supply); err != nil {
		return nil, fmt.Errorf("parse minted_supply: %w", err)
	}
	m.Auction.HalfLife = time.Duration(halfLifeMs) * time.Millisecond

	return &m, nil
}
