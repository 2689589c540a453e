package postgres

import (
	"context"
	"fmt"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL. The table is
// append-only; the current reference price of a token is its latest row.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// Latest retrieves the newest price point for a token.
func (s *PriceStore) Latest(ctx context.Context, token domain.Token) (*domain.PricePoint, error) {
	if !token.Valid() {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT token, price, source, timestamp_ms
		FROM price_history
		WHERE token = $1
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT 1
	`

	var p domain.PricePoint
	err := s.pool.QueryRow(ctx, query, token).
		Scan(&p.Token, &p.Price, &p.Source, &p.TimestampMs)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest price: %w", err)
	}
	return &p, nil
}

// Append adds one price point.
func (s *PriceStore) Append(ctx context.Context, p *domain.PricePoint) error {
	if p == nil || !p.Token.Valid() || p.Price < 0 {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_history (token, price, source, timestamp_ms)
		VALUES ($1, $2, $3, $4)
	`, p.Token, p.Price, p.Source, p.TimestampMs)
	if err != nil {
		return fmt.Errorf("append price point: %w", err)
	}
	return nil
}

// History retrieves the newest points for a token, newest first.
func (s *PriceStore) History(ctx context.Context, token domain.Token, limit int) ([]*domain.PricePoint, error) {
	if !token.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT token, price, source, timestamp_ms
		FROM price_history
		WHERE token = $1
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, token, limit)
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}
	defer rows.Close()

	var out []*domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Token, &p.Price, &p.Source, &p.TimestampMs); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return out, nil
}
