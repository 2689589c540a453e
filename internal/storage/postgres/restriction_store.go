package postgres

import (
	"context"
	"fmt"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// RestrictionStore implements storage.RestrictionStore using PostgreSQL.
// Restriction rows are static configuration; this store only reads them.
type RestrictionStore struct {
	pool *Pool
}

// NewRestrictionStore creates a new RestrictionStore.
func NewRestrictionStore(pool *Pool) *RestrictionStore {
	return &RestrictionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RestrictionStore = (*RestrictionStore)(nil)

// AllowedRecipient returns the pinned recipient for a holder address.
func (s *RestrictionStore) AllowedRecipient(ctx context.Context, holderAddress string) (string, error) {
	if holderAddress == "" {
		return "", storage.ErrInvalidInput
	}

	var recipient string
	err := s.pool.QueryRow(ctx, `
		SELECT allowed_recipient FROM transfer_restrictions WHERE holder_address = $1
	`, holderAddress).Scan(&recipient)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get allowed recipient: %w", err)
	}
	return recipient, nil
}

// List retrieves all restriction rows.
func (s *RestrictionStore) List(ctx context.Context) ([]*domain.TransferRestriction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT holder_address, allowed_recipient, created_at
		FROM transfer_restrictions
		ORDER BY holder_address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list transfer restrictions: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransferRestriction
	for rows.Next() {
		var r domain.TransferRestriction
		if err := rows.Scan(&r.HolderAddress, &r.AllowedRecipient, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan restriction row: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restriction rows: %w", err)
	}
	return out, nil
}
