package memory

import (
	"context"
	"sync"

	"relay-market-core/internal/domain"
	"relay-market-core/internal/storage"
)

// EpochStore is an in-memory implementation of storage.EpochStore.
type EpochStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AuctionEpoch // keyed by market_id, current epoch only
}

// NewEpochStore creates a new in-memory epoch store.
func NewEpochStore() *EpochStore {
	return &EpochStore{
		data: make(map[string]*domain.AuctionEpoch),
	}
}

// Compile-time interface check.
var _ storage.EpochStore = (*EpochStore)(nil)

// Put inserts or replaces the market's current epoch.
func (s *EpochStore) Put(_ context.Context, e *domain.AuctionEpoch) error {
	if e == nil || e.MarketID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *e
	s.data[e.MarketID] = &copy
	return nil
}

// GetByMarket retrieves the current epoch. Returns ErrNotFound if not exists.
func (s *EpochStore) GetByMarket(_ context.Context, marketID string) (*domain.AuctionEpoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[marketID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *e
	return &copy, nil
}
