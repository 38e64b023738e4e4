package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"relay-market-core/internal/domain"
	"relay-market-core/internal/storage"
)

// SettlementStore implements storage.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

// Insert adds a new settlement. Returns ErrDuplicateKey if settlement_id exists.
func (s *SettlementStore) Insert(ctx context.Context, rec *domain.Settlement) error {
	query := `
		INSERT INTO settlements (
			settlement_id, market_id, epoch_id, buyer, lot_amount, price_paid, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.SettlementID,
		rec.MarketID,
		rec.EpochID,
		rec.Buyer,
		rec.LotAmount.String(),
		rec.PricePaid.String(),
		rec.SettledAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByID retrieves a settlement by its ID. Returns ErrNotFound if not exists.
func (s *SettlementStore) GetByID(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	query := `
		SELECT settlement_id, market_id, epoch_id, buyer, lot_amount::text, price_paid::text, settled_at
		FROM settlements
		WHERE settlement_id = $1
	`

	row := s.pool.QueryRow(ctx, query, settlementID)
	rec, err := scanSettlement(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settlement by id: %w", err)
	}
	return rec, nil
}

// GetByMarket retrieves all settlements for a market, ordered by settled_at ASC.
func (s *SettlementStore) GetByMarket(ctx context.Context, marketID string) ([]*domain.Settlement, error) {
	query := `
		SELECT settlement_id, market_id, epoch_id, buyer, lot_amount::text, price_paid::text, settled_at
		FROM settlements
		WHERE market_id = $1
		ORDER BY settled_at ASC, epoch_id ASC
	`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("get settlements by market: %w", err)
	}
	defer rows.Close()

	var result []*domain.Settlement
	for rows.Next() {
		rec, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// scanSettlement scans a settlement row.
func scanSettlement(row pgx.Row) (*domain.Settlement, error) {
	var (
		rec   domain.Settlement
		lot   string
		price string
	)

	err := row.Scan(
		&rec.SettlementID,
		&rec.MarketID,
		&rec.EpochID,
		&rec.Buyer,
		&lot,
		&price,
		&rec.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.LotAmount, err = decimal.NewFromString(lot); err != nil {
		return nil, fmt.Errorf("parse lot_amount: %w", err)
	}
	if rec.PricePaid, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price_paid: %w", err)
	}

	return &rec, nil
}
