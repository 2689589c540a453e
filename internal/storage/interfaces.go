package storage

import (
	"context"

	"token-exchange-engine/internal/domain"
)

// LedgerStore provides access to balances and the transaction audit log.
// Apply is the only mutation path; it must be atomic across all legs.
type LedgerStore interface {
	// Balance retrieves one (owner, token) row. A missing row reads as a
	// zero balance, not ErrNotFound.
	Balance(ctx context.Context, owner domain.Owner, token domain.Token) (*domain.Balance, error)

	// BalancesByOwner retrieves every non-zero balance row for an owner.
	BalancesByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Balance, error)

	// Apply executes a mutation atomically: all legs, the optional trade row
	// and all audit entries commit together or not at all. A mutation with
	// no legs but at least one entry is a pure audit append. Returns
	// ErrInsufficientFunds if any debited leg would go negative, ErrConflict
	// if a concurrent mutation prevented commit. Concurrent Apply calls on
	// the same (owner, token) must serialize.
	Apply(ctx context.Context, m *domain.Mutation) error

	// RecentTransactions retrieves the newest audit rows touching an owner,
	// newest first, at most limit rows.
	RecentTransactions(ctx context.Context, owner domain.Owner, limit int) ([]*domain.Transaction, error)
}

// WalletStore provides access to lazily-created chain wallets.
type WalletStore interface {
	// GetByOwner retrieves an owner's wallet. Returns ErrNotFound if absent.
	GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Wallet, error)

	// Create inserts a wallet. Returns ErrDuplicateKey if the owner already
	// has one.
	Create(ctx context.Context, w *domain.Wallet) error
}

// TradeStore provides read access to the append-only trade log.
// Inserts happen through Mutation.Trade so they commit with settlement.
type TradeStore interface {
	// ListByOwner retrieves an owner's trades, newest first, at most limit rows.
	ListByOwner(ctx context.Context, owner domain.Owner, limit int) ([]*domain.Trade, error)
}

// SwapStore provides access to custodial bridge swaps. The status machine is
// forward-only: pending → completed | failed, both terminal.
type SwapStore interface {
	// Insert adds a new pending swap. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, s *domain.Swap) error

	// GetByID retrieves a swap. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*domain.Swap, error)

	// Complete transitions pending → completed and records the signature.
	// Returns (true, nil) when this call performed the transition,
	// (false, nil) when the swap was already completed (idempotent re-confirm),
	// ErrNotFound when absent, ErrConflict when the swap is failed.
	Complete(ctx context.Context, id, signature string, completedAt int64) (bool, error)

	// Fail transitions pending → failed. A no-op on already-terminal swaps.
	Fail(ctx context.Context, id string) error

	// ExpirePending marks every pending swap created before cutoff as failed
	// and returns how many rows transitioned.
	ExpirePending(ctx context.Context, cutoffMs int64) (int64, error)

	// CompletedUnits returns the authoritative cumulative unit volume across
	// completed swaps. The bonding curve is always derived from this figure.
	CompletedUnits(ctx context.Context) (uint64, error)

	// CountCompleted returns the number of completed swaps.
	CountCompleted(ctx context.Context) (int64, error)

	// ListCompletedByBuyer retrieves completed swaps for one buyer address,
	// newest first.
	ListCompletedByBuyer(ctx context.Context, buyerAddress string) ([]*domain.Swap, error)
}

// RestrictionStore provides read access to static transfer restrictions.
type RestrictionStore interface {
	// AllowedRecipient returns the pinned recipient for a holder address.
	// Returns ErrNotFound when the holder is unrestricted.
	AllowedRecipient(ctx context.Context, holderAddress string) (string, error)

	// List retrieves all restriction rows.
	List(ctx context.Context) ([]*domain.TransferRestriction, error)
}

// PriceStore provides access to the append-only reference price history.
type PriceStore interface {
	// Latest retrieves the newest price point for a token.
	// Returns ErrNotFound when the token has no history yet.
	Latest(ctx context.Context, token domain.Token) (*domain.PricePoint, error)

	// Append adds one price point.
	Append(ctx context.Context, p *domain.PricePoint) error

	// History retrieves the newest points for a token, newest first,
	// at most limit rows.
	History(ctx context.Context, token domain.Token, limit int) ([]*domain.PricePoint, error)
}

// TickStore provides access to the market tick analytics log (ClickHouse).
type TickStore interface {
	// InsertBatch appends ticks. Best-effort analytics: duplicates are not checked.
	InsertBatch(ctx context.Context, ticks []*domain.MarketTick) error

	// Stats24h aggregates tick volume, trade count and last price for a pair
	// over the trailing 24 hours.
	Stats24h(ctx context.Context, pair string) (*PairStats, error)
}

// PairStats is the TickStore 24h aggregate for one pair.
type PairStats struct {
	Pair       string
	LastPrice  float64
	HighPrice  float64
	LowPrice   float64
	BaseVolume int64
	TradeCount int64
}
