package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore and
// storage.TradeStore. A single mutex serializes mutations, which gives the
// same all-or-nothing semantics the Postgres implementation gets from
// row locks inside a transaction.
type LedgerStore struct {
	mu           sync.RWMutex
	balances     map[string]*domain.Balance // keyed by owner key + token
	transactions []*domain.Transaction
	trades       []*domain.Trade
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances: make(map[string]*domain.Balance),
	}
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore = (*LedgerStore)(nil)
	_ storage.TradeStore  = (*LedgerStore)(nil)
)

// balanceKey generates the map key for a (owner, token) row.
func balanceKey(owner domain.Owner, token domain.Token) string {
	return owner.Key() + "|" + string(token)
}

// Balance retrieves one (owner, token) row. Missing rows read as zero.
func (s *LedgerStore) Balance(_ context.Context, owner domain.Owner, token domain.Token) (*domain.Balance, error) {
	if !owner.Valid() || !token.Valid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[balanceKey(owner, token)]; ok {
		copy := *b
		return &copy, nil
	}
	return &domain.Balance{Owner: owner, Token: token}, nil
}

// BalancesByOwner retrieves every non-zero balance row for an owner.
func (s *LedgerStore) BalancesByOwner(_ context.Context, owner domain.Owner) ([]*domain.Balance, error) {
	if !owner.Valid() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Balance
	for _, b := range s.balances {
		if b.Owner == owner && b.Amount != 0 {
			copy := *b
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

// Apply executes a mutation atomically under the store mutex.
func (s *LedgerStore) Apply(_ context.Context, m *domain.Mutation) error {
	if m == nil || (len(m.Legs) == 0 && len(m.Entries) == 0) {
		return storage.ErrInvalidInput
	}
	for _, leg := range m.Legs {
		if !leg.Owner.Valid() || !leg.Token.Valid() || leg.Amount == 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Net effect per row, so two legs on the same row are judged together.
	net := make(map[string]int64)
	for _, leg := range m.Legs {
		net[balanceKey(leg.Owner, leg.Token)] += leg.Amount
	}
	for key, delta := range net {
		var current int64
		if b, ok := s.balances[key]; ok {
			current = b.Amount
		}
		if current+delta < 0 {
			return storage.ErrInsufficientFunds
		}
	}

	now := time.Now().UnixMilli()
	for _, leg := range m.Legs {
		key := balanceKey(leg.Owner, leg.Token)
		b, ok := s.balances[key]
		if !ok {
			b = &domain.Balance{Owner: leg.Owner, Token: leg.Token}
			s.balances[key] = b
		}
		b.Amount += leg.Amount
		if leg.Amount > 0 && leg.Earned {
			b.LifetimeEarned += leg.Amount
		}
		b.UpdatedAt = now
	}

	if m.Trade != nil {
		copy := *m.Trade
		s.trades = append(s.trades, &copy)
	}
	for _, e := range m.Entries {
		copy := *e
		s.transactions = append(s.transactions, &copy)
	}

	return nil
}

// RecentTransactions retrieves audit rows touching an owner, newest first.
func (s *LedgerStore) RecentTransactions(_ context.Context, owner domain.Owner, limit int) ([]*domain.Transaction, error) {
	if !owner.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	key := owner.Key()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for i := len(s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		tx := s.transactions[i]
		if tx.From == key || tx.To == key {
			copy := *tx
			out = append(out, &copy)
		}
	}
	return out, nil
}

// ListByOwner retrieves an owner's trades, newest first.
func (s *LedgerStore) ListByOwner(_ context.Context, owner domain.Owner, limit int) ([]*domain.Trade, error) {
	if !owner.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Trade
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if s.trades[i].Owner == owner {
			copy := *s.trades[i]
			out = append(out, &copy)
		}
	}
	return out, nil
}
