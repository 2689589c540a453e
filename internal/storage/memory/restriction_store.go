package memory

import (
	"context"
	"sort"
	"sync"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// RestrictionStore is an in-memory implementation of storage.RestrictionStore.
// Rows are loaded once at startup; the store is read-only afterwards.
type RestrictionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransferRestriction // keyed by holder address
}

// NewRestrictionStore creates a store pre-loaded with the given rows.
func NewRestrictionStore(rows []*domain.TransferRestriction) *RestrictionStore {
	data := make(map[string]*domain.TransferRestriction, len(rows))
	for _, r := range rows {
		copy := *r
		data[r.HolderAddress] = &copy
	}
	return &RestrictionStore{data: data}
}

// Compile-time interface check.
var _ storage.RestrictionStore = (*RestrictionStore)(nil)

// AllowedRecipient returns the pinned recipient for a holder address.
func (s *RestrictionStore) AllowedRecipient(_ context.Context, holderAddress string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[holderAddress]
	if !ok {
		return "", storage.ErrNotFound
	}
	return r.AllowedRecipient, nil
}

// List retrieves all restriction rows.
func (s *RestrictionStore) List(_ context.Context) ([]*domain.TransferRestriction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TransferRestriction, 0, len(s.data))
	for _, r := range s.data {
		copy := *r
		out = append(out, &copy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HolderAddress < out[j].HolderAddress })
	return out, nil
}
