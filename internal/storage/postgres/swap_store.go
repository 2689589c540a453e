package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// SwapStore implements storage.SwapStore using PostgreSQL. Status
// transitions are single conditional UPDATEs, so the forward-only state
// machine holds under concurrent confirmations without explicit locks.
type SwapStore struct {
	pool *Pool
}

// NewSwapStore creates a new SwapStore.
func NewSwapStore(pool *Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)

// Insert adds a new pending swap. Returns ErrDuplicateKey if the ID exists.
func (s *SwapStore) Insert(ctx context.Context, swap *domain.Swap) error {
	if swap == nil || swap.ID == "" || swap.BuyerAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO swaps (
			id, buyer_address, unit_amount, quote_cost, unit_price,
			status, blockhash, tx_signature, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		swap.ID,
		swap.BuyerAddress,
		int64(swap.UnitAmount),
		int64(swap.QuoteCost),
		int64(swap.UnitPrice),
		swap.Status,
		swap.Blockhash,
		swap.TxSignature,
		swap.CreatedAt,
		swap.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// GetByID retrieves a swap. Returns ErrNotFound if absent.
func (s *SwapStore) GetByID(ctx context.Context, id string) (*domain.Swap, error) {
	query := `
		SELECT id, buyer_address, unit_amount, quote_cost, unit_price,
		       status, blockhash, tx_signature, created_at, completed_at
		FROM swaps
		WHERE id = $1
	`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get swap by id: %w", err)
	}
	defer rows.Close()

	swaps, err := scanSwaps(rows)
	if err != nil {
		return nil, err
	}
	if len(swaps) == 0 {
		return nil, storage.ErrNotFound
	}
	return swaps[0], nil
}

// Complete transitions pending → completed exactly once. The conditional
// UPDATE is the idempotency point: zero rows affected means the swap was
// already terminal, and the current status decides no-op versus conflict.
func (s *SwapStore) Complete(ctx context.Context, id, signature string, completedAt int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swaps
		SET status = $2, tx_signature = $3, completed_at = $4
		WHERE id = $1 AND status = $5
	`, id, domain.SwapStatusCompleted, signature, completedAt, domain.SwapStatusPending)
	if err != nil {
		return false, fmt.Errorf("complete swap: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	swap, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if swap.Status == domain.SwapStatusCompleted {
		return false, nil // idempotent re-confirmation
	}
	return false, storage.ErrConflict
}

// Fail transitions pending → failed. Terminal swaps are left untouched.
func (s *SwapStore) Fail(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swaps SET status = $2 WHERE id = $1 AND status = $3
	`, id, domain.SwapStatusFailed, domain.SwapStatusPending)
	if err != nil {
		return fmt.Errorf("fail swap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already-terminal.
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ExpirePending marks pending swaps created before cutoff as failed.
func (s *SwapStore) ExpirePending(ctx context.Context, cutoffMs int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE swaps SET status = $1 WHERE status = $2 AND created_at < $3
	`, domain.SwapStatusFailed, domain.SwapStatusPending, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("expire pending swaps: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CompletedUnits returns the authoritative cumulative unit volume across
// completed swaps. Recomputed on every call; never cached.
func (s *SwapStore) CompletedUnits(ctx context.Context) (uint64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(unit_amount), 0) FROM swaps WHERE status = $1
	`, domain.SwapStatusCompleted).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum completed units: %w", err)
	}
	return uint64(total), nil
}

// CountCompleted returns the number of completed swaps.
func (s *SwapStore) CountCompleted(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM swaps WHERE status = $1
	`, domain.SwapStatusCompleted).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed swaps: %w", err)
	}
	return n, nil
}

// ListCompletedByBuyer retrieves completed swaps for one buyer, newest first.
func (s *SwapStore) ListCompletedByBuyer(ctx context.Context, buyerAddress string) ([]*domain.Swap, error) {
	if buyerAddress == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT id, buyer_address, unit_amount, quote_cost, unit_price,
		       status, blockhash, tx_signature, created_at, completed_at
		FROM swaps
		WHERE buyer_address = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.pool.Query(ctx, query, buyerAddress, domain.SwapStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list completed swaps by buyer: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

// scanSwaps scans multiple rows into a slice of Swap.
func scanSwaps(rows pgx.Rows) ([]*domain.Swap, error) {
	var swaps []*domain.Swap

	for rows.Next() {
		var swap domain.Swap
		var unitAmount, quoteCost, unitPrice int64

		err := rows.Scan(
			&swap.ID,
			&swap.BuyerAddress,
			&unitAmount,
			&quoteCost,
			&unitPrice,
			&swap.Status,
			&swap.Blockhash,
			&swap.TxSignature,
			&swap.CreatedAt,
			&swap.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}

		swap.UnitAmount = uint64(unitAmount)
		swap.QuoteCost = uint64(quoteCost)
		swap.UnitPrice = uint64(unitPrice)
		swaps = append(swaps, &swap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}
	return swaps, nil
}
