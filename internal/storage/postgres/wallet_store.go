package postgres

import (
	"context"
	"fmt"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// GetByOwner retrieves an owner's wallet. Returns ErrNotFound if absent.
func (s *WalletStore) GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Wallet, error) {
	if !owner.Valid() {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT chain_address, native_balance, created_at
		FROM wallets
		WHERE owner_kind = $1 AND owner_id = $2
	`

	w := &domain.Wallet{Owner: owner}
	var nativeBalance int64
	err := s.pool.QueryRow(ctx, query, owner.Kind, owner.ID).
		Scan(&w.ChainAddress, &nativeBalance, &w.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by owner: %w", err)
	}
	w.NativeBalance = uint64(nativeBalance)
	return w, nil
}

// Create inserts a wallet. Returns ErrDuplicateKey if the owner has one.
func (s *WalletStore) Create(ctx context.Context, w *domain.Wallet) error {
	if w == nil || !w.Owner.Valid() || w.ChainAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallets (owner_kind, owner_id, chain_address, native_balance, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		w.Owner.Kind, w.Owner.ID, w.ChainAddress, int64(w.NativeBalance), w.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}
