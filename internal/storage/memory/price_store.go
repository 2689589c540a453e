package memory

import (
	"context"
	"sync"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
// History is append-only; the latest point is the current reference price.
type PriceStore struct {
	mu     sync.RWMutex
	points map[domain.Token][]*domain.PricePoint // append order per token
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		points: make(map[domain.Token][]*domain.PricePoint),
	}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// Latest retrieves the newest price point for a token.
func (s *PriceStore) Latest(_ context.Context, token domain.Token) (*domain.PricePoint, error) {
	if !token.Valid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.points[token]
	if len(history) == 0 {
		return nil, storage.ErrNotFound
	}
	copy := *history[len(history)-1]
	return &copy, nil
}

// Append adds one price point.
func (s *PriceStore) Append(_ context.Context, p *domain.PricePoint) error {
	if p == nil || !p.Token.Valid() || p.Price < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.points[p.Token] = append(s.points[p.Token], &copy)
	return nil
}

// History retrieves the newest points for a token, newest first.
func (s *PriceStore) History(_ context.Context, token domain.Token, limit int) ([]*domain.PricePoint, error) {
	if !token.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.points[token]
	var out []*domain.PricePoint
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		copy := *history[i]
		out = append(out, &copy)
	}
	return out, nil
}
