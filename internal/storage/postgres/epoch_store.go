package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/domain"
	"relay-market-core/internal/storage"
)

// EpochStore implements storage.EpochStore using PostgreSQL. One row per
// market holds the current epoch plus the pending accrual buffer.
type EpochStore struct {
	pool *Pool
}

// NewEpochStore creates a new EpochStore.
func NewEpochStore(pool *Pool) *EpochStore {
	return &EpochStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EpochStore = (*EpochStore)(nil)

// Put inserts or replaces the market's current epoch.
func (s *EpochStore) Put(ctx context.Context, e *domain.AuctionEpoch) error {
	query := `
		INSERT INTO auction_epochs (
			market_id, epoch_id, lot_amount, start_price, start_time, pending_accrual
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (market_id) DO UPDATE SET
			epoch_id = EXCLUDED.epoch_id,
			lot_amount = EXCLUDED.lot_amount,
			start_price = EXCLUDED.start_price,
			start_time = EXCLUDED.start_time,
			pending_accrual = EXCLUDED.pending_accrual
	`

	_, err := s.pool.Exec(ctx, query,
		e.MarketID,
		e.EpochID,
		e.LotAmount.String(),
		e.StartPrice.String(),
		e.StartTime,
		e.PendingAccrual.String(),
	)
	if err != nil {
		return fmt.Errorf("put epoch: %w", err)
	}
	return nil
}

// GetByMarket retrieves the current epoch. Returns ErrNotFound if not exists.
func (s *EpochStore) GetByMarket(ctx context.Context, marketID string) (*domain.AuctionEpoch, error) {
	query := `
		SELECT market_id, epoch_id, lot_amount::text, start_price::text, start_time, pending_accrual::text
		FROM auction_epochs
		WHERE market_id = $1
	`

	var (
		e       domain.AuctionEpoch
		lot     string
		price   string
		pending string
	)

	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&e.MarketID, &e.EpochID, &lot, &price, &e.StartTime, &pending,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get epoch by market: %w", err)
	}

	if e.LotAmount, err = decimal.NewFromString(lot); err != nil {
		return nil, fmt.Errorf("parse lot_amount: %w", err)
	}
	if e.StartPrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse start_price: %w", err)
	}
	if e.PendingAccrual, err = decimal.NewFromString(pending); err != nil {
		return nil, fmt.Errorf("parse pending_accrual: %w", err)
	}

	return &e, nil
}
