package memory

import (
	"context"
	"sort"
	"sync"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// SwapStore is an in-memory implementation of storage.SwapStore.
type SwapStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Swap // keyed by swap ID
}

// NewSwapStore creates a new in-memory swap store.
func NewSwapStore() *SwapStore {
	return &SwapStore{
		data: make(map[string]*domain.Swap),
	}
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)

// Insert adds a new pending swap. Returns ErrDuplicateKey if the ID exists.
func (s *SwapStore) Insert(_ context.Context, swap *domain.Swap) error {
	if swap == nil || swap.ID == "" || swap.BuyerAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[swap.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *swap
	s.data[swap.ID] = &copy
	return nil
}

// GetByID retrieves a swap. Returns ErrNotFound if absent.
func (s *SwapStore) GetByID(_ context.Context, id string) (*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	swap, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *swap
	return &copy, nil
}

// Complete transitions pending → completed exactly once.
func (s *SwapStore) Complete(_ context.Context, id, signature string, completedAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.data[id]
	if !ok {
		return false, storage.ErrNotFound
	}

	switch swap.Status {
	case domain.SwapStatusCompleted:
		return false, nil // idempotent re-confirmation
	case domain.SwapStatusFailed:
		return false, storage.ErrConflict
	}

	swap.Status = domain.SwapStatusCompleted
	swap.TxSignature = signature
	swap.CompletedAt = completedAt
	return true, nil
}

// Fail transitions pending → failed. Terminal swaps are left untouched.
func (s *SwapStore) Fail(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	swap, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if swap.Terminal() {
		return nil
	}
	swap.Status = domain.SwapStatusFailed
	return nil
}

// ExpirePending marks pending swaps created before cutoff as failed.
func (s *SwapStore) ExpirePending(_ context.Context, cutoffMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, swap := range s.data {
		if swap.Status == domain.SwapStatusPending && swap.CreatedAt < cutoffMs {
			swap.Status = domain.SwapStatusFailed
			n++
		}
	}
	return n, nil
}

// CompletedUnits returns cumulative unit volume across completed swaps.
func (s *SwapStore) CompletedUnits(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for _, swap := range s.data {
		if swap.Status == domain.SwapStatusCompleted {
			total += swap.UnitAmount
		}
	}
	return total, nil
}

// CountCompleted returns the number of completed swaps.
func (s *SwapStore) CountCompleted(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, swap := range s.data {
		if swap.Status == domain.SwapStatusCompleted {
			n++
		}
	}
	return n, nil
}

// ListCompletedByBuyer retrieves completed swaps for one buyer, newest first.
func (s *SwapStore) ListCompletedByBuyer(_ context.Context, buyerAddress string) ([]*domain.Swap, error) {
	if buyerAddress == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Swap
	for _, swap := range s.data {
		if swap.BuyerAddress == buyerAddress && swap.Status == domain.SwapStatusCompleted {
			copy := *swap
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}
