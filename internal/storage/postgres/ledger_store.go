package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// LedgerStore implements storage.LedgerStore and storage.TradeStore using
// PostgreSQL. Mutations lock the touched balance rows with SELECT ... FOR
// UPDATE in deterministic key order, so concurrent debits on the same
// (owner, token) serialize and can never jointly overdraw a row. This holds
// across multiple server processes sharing the database.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.LedgerStore = (*LedgerStore)(nil)
	_ storage.TradeStore  = (*LedgerStore)(nil)
)

// Balance retrieves one (owner, token) row. Missing rows read as zero.
func (s *LedgerStore) Balance(ctx context.Context, owner domain.Owner, token domain.Token) (*domain.Balance, error) {
	if !owner.Valid() || !token.Valid() {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT amount, lifetime_earned, updated_at
		FROM balances
		WHERE owner_kind = $1 AND owner_id = $2 AND token = $3
	`

	b := &domain.Balance{Owner: owner, Token: token}
	err := s.pool.QueryRow(ctx, query, owner.Kind, owner.ID, token).
		Scan(&b.Amount, &b.LifetimeEarned, &b.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return b, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// BalancesByOwner retrieves every non-zero balance row for an owner.
func (s *LedgerStore) BalancesByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Balance, error) {
	if !owner.Valid() {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT token, amount, lifetime_earned, updated_at
		FROM balances
		WHERE owner_kind = $1 AND owner_id = $2 AND amount <> 0
		ORDER BY token ASC
	`

	rows, err := s.pool.Query(ctx, query, owner.Kind, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("get balances by owner: %w", err)
	}
	defer rows.Close()

	var out []*domain.Balance
	for rows.Next() {
		b := &domain.Balance{Owner: owner}
		if err := rows.Scan(&b.Token, &b.Amount, &b.LifetimeEarned, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return out, nil
}

// Apply executes a mutation atomically in one transaction.
func (s *LedgerStore) Apply(ctx context.Context, m *domain.Mutation) error {
	if m == nil || (len(m.Legs) == 0 && len(m.Entries) == 0) {
		return storage.ErrInvalidInput
	}
	for _, leg := range m.Legs {
		if !leg.Owner.Valid() || !leg.Token.Valid() || leg.Amount == 0 {
			return storage.ErrInvalidInput
		}
	}

	err := s.applyTx(ctx, m)
	if isConflictError(err) {
		// One internal retry; a persistent conflict surfaces to the caller.
		err = s.applyTx(ctx, m)
		if isConflictError(err) {
			return storage.ErrConflict
		}
	}
	return err
}

// legKey orders balance rows deterministically for locking.
type legKey struct {
	kind  domain.OwnerKind
	id    string
	token domain.Token
}

func (k legKey) String() string {
	return string(k.kind) + "|" + k.id + "|" + string(k.token)
}

func (s *LedgerStore) applyTx(ctx context.Context, m *domain.Mutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Net effect per row; rows are locked in sorted key order so two
	// concurrent mutations touching the same rows never deadlock.
	net := make(map[legKey]int64)
	earned := make(map[legKey]int64)
	for _, leg := range m.Legs {
		k := legKey{leg.Owner.Kind, leg.Owner.ID, leg.Token}
		net[k] += leg.Amount
		if leg.Amount > 0 && leg.Earned {
			earned[k] += leg.Amount
		}
	}
	keys := make([]legKey, 0, len(net))
	for k := range net {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	now := time.Now().UnixMilli()

	for _, k := range keys {
		// Ensure the row exists so FOR UPDATE has something to lock.
		_, err := tx.Exec(ctx, `
			INSERT INTO balances (owner_kind, owner_id, token, amount, lifetime_earned, updated_at)
			VALUES ($1, $2, $3, 0, 0, $4)
			ON CONFLICT (owner_kind, owner_id, token) DO NOTHING
		`, k.kind, k.id, k.token, now)
		if err != nil {
			return fmt.Errorf("ensure balance row: %w", err)
		}

		var current int64
		err = tx.QueryRow(ctx, `
			SELECT amount FROM balances
			WHERE owner_kind = $1 AND owner_id = $2 AND token = $3
			FOR UPDATE
		`, k.kind, k.id, k.token).Scan(&current)
		if err != nil {
			return fmt.Errorf("lock balance row: %w", err)
		}

		if current+net[k] < 0 {
			return storage.ErrInsufficientFunds
		}

		_, err = tx.Exec(ctx, `
			UPDATE balances
			SET amount = amount + $4, lifetime_earned = lifetime_earned + $5, updated_at = $6
			WHERE owner_kind = $1 AND owner_id = $2 AND token = $3
		`, k.kind, k.id, k.token, net[k], earned[k], now)
		if err != nil {
			return fmt.Errorf("update balance row: %w", err)
		}
	}

	if m.Trade != nil {
		t := m.Trade
		_, err := tx.Exec(ctx, `
			INSERT INTO trades (
				id, owner_kind, owner_id, base_token, quote_token, side,
				base_amount, quote_amount, price, fee_amount, status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, t.ID, t.Owner.Kind, t.Owner.ID, t.Pair.Base, t.Pair.Quote, t.Side,
			t.BaseAmount, t.QuoteAmount, t.Price, t.FeeAmount, t.Status, t.CreatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	for _, e := range m.Entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (
				hash, block, from_party, to_party, amount, token, fee, status, kind, memo, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, e.Hash, e.Block, e.From, e.To, e.Amount, e.Token, e.Fee, e.Status, e.Kind, e.Memo, e.CreatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecentTransactions retrieves audit rows touching an owner, newest first.
func (s *LedgerStore) RecentTransactions(ctx context.Context, owner domain.Owner, limit int) ([]*domain.Transaction, error) {
	if !owner.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT hash, block, from_party, to_party, amount, token, fee, status, kind, memo, created_at
		FROM transactions
		WHERE from_party = $1 OR to_party = $1
		ORDER BY created_at DESC, hash DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, owner.Key(), limit)
	if err != nil {
		return nil, fmt.Errorf("get recent transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByOwner retrieves an owner's trades, newest first.
func (s *LedgerStore) ListByOwner(ctx context.Context, owner domain.Owner, limit int) ([]*domain.Trade, error) {
	if !owner.Valid() || limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT id, owner_kind, owner_id, base_token, quote_token, side,
		       base_amount, quote_amount, price, fee_amount, status, created_at
		FROM trades
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, owner.Kind, owner.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades by owner: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		err := rows.Scan(
			&t.ID, &t.Owner.Kind, &t.Owner.ID, &t.Pair.Base, &t.Pair.Quote, &t.Side,
			&t.BaseAmount, &t.QuoteAmount, &t.Price, &t.FeeAmount, &t.Status, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// scanTransactions scans multiple rows into a slice of Transaction.
func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction

	for rows.Next() {
		var tx domain.Transaction
		err := rows.Scan(
			&tx.Hash, &tx.Block, &tx.From, &tx.To, &tx.Amount,
			&tx.Token, &tx.Fee, &tx.Status, &tx.Kind, &tx.Memo, &tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txs, nil
}
