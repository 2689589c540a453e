package domain

// Balance is the ledger row for one (owner, token). Amount never goes
// negative; LifetimeEarned only grows. Corresponds to balances table.
type Balance struct {
	Owner          Owner
	Token          Token
	Amount         int64 // current holdings in base units
	LifetimeEarned int64 // cumulative credited amount, monotonic
	UpdatedAt      int64 // last mutation timestamp (ms)
}

// Wallet is the lazily-created chain identity for an owner.
// At most one per owner. Corresponds to wallets table.
type Wallet struct {
	Owner         Owner
	ChainAddress  string // base58 ed25519 public key
	NativeBalance uint64 // lamports, last observed via RPC
	CreatedAt     int64  // record creation timestamp (ms)
}
