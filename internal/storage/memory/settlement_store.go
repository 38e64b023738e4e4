package memory

import (
	"context"
	"sort"
	"sync"

	"relay-market-core/internal/domain"
	"relay-market-core/internal/storage"
)

// SettlementStore is an in-memory implementation of storage.SettlementStore.
type SettlementStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Settlement // keyed by settlement_id
}

// NewSettlementStore creates a new in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{
		data: make(map[string]*domain.Settlement),
	}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

// Insert adds a new settlement. Returns ErrDuplicateKey if settlement_id exists.
func (s *SettlementStore) Insert(_ context.Context, rec *domain.Settlement) error {
	if rec == nil || rec.SettlementID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.SettlementID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *rec
	s.data[rec.SettlementID] = &copy
	return nil
}

// GetByID retrieves a settlement by its ID. Returns ErrNotFound if not exists.
func (s *SettlementStore) GetByID(_ context.Context, settlementID string) (*domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[settlementID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *rec
	return &copy, nil
}

// GetByMarket retrieves all settlements for a market, ordered by settled_at ASC.
func (s *SettlementStore) GetByMarket(_ context.Context, marketID string) ([]*domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Settlement
	for _, rec := range s.data {
		if rec.MarketID == marketID {
			copy := *rec
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].SettledAt.Equal(result[j].SettledAt) {
			return result[i].EpochID < result[j].EpochID
		}
		return result[i].SettledAt.Before(result[j].SettledAt)
	})

	return result, nil
}
