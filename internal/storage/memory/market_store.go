package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/domain"
	"relay-market-core/internal/storage"
)

// MarketStore is an in-memory implementation of storage.MarketStore.
type MarketStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Market // keyed by market_id
}

// NewMarketStore creates a new in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		data: make(map[string]*domain.Market),
	}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

// Insert adds a new market. Returns ErrDuplicateKey if market_id exists.
func (s *MarketStore) Insert(_ context.Context, m *domain.Market) error {
	if m == nil || m.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.MarketID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *m
	s.data[m.MarketID] = &copy
	return nil
}

// GetByID retrieves a market by its ID. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByID(_ context.Context, marketID string) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[marketID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *m
	return &copy, nil
}

// List retrieves all markets, ordered by created_at ASC.
func (s *MarketStore) List(_ context.Context) ([]*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Market, 0, len(s.data))
	for _, m := range s.data {
		copy := *m
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].MarketID < result[j].MarketID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// UpdateFinancials persists the mutable financials after a committed operation.
func (s *MarketStore) UpdateFinancials(_ context.Context, marketID string, reserveBalance, mintedSupply decimal.Decimal, halted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.data[marketID]
	if !exists {
		return storage.ErrNotFound
	}

	m.ReserveBalance = reserveBalance
	m.MintedSupply = mintedSupply
	m.Halted = halted
	return nil
}
