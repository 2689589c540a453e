package memory

import (
	"context"
	"sync"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet // keyed by owner key
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// GetByOwner retrieves an owner's wallet. Returns ErrNotFound if absent.
func (s *WalletStore) GetByOwner(_ context.Context, owner domain.Owner) (*domain.Wallet, error) {
	if !owner.Valid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[owner.Key()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *w
	return &copy, nil
}

// Create inserts a wallet. Returns ErrDuplicateKey if the owner has one.
func (s *WalletStore) Create(_ context.Context, w *domain.Wallet) error {
	if w == nil || !w.Owner.Valid() || w.ChainAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.Owner.Key()]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *w
	s.data[w.Owner.Key()] = &copy
	return nil
}
