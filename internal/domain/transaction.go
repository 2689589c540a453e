package domain

// Transaction kind constants. Mint and burn are the only operations allowed
// to create or destroy value; everything else must conserve it.
const (
	TxKindTransfer = "transfer"
	TxKindMint     = "mint"
	TxKindBurn     = "burn"
)

// Transaction status constants
const (
	TxStatusConfirmed = "confirmed"
	TxStatusSimulated = "simulated"
)

// Transaction is one row of the append-only audit log. Every ledger-affecting
// event gets a row, including synthetic ones produced by simulated market
// trades. Rows are never updated after creation.
type Transaction struct {
	Hash      string // chain signature or synthetic idhash
	Block     int64  // chain slot, 0 for synthetic rows
	From      string // owner key or chain address; "" for mints
	To        string // owner key or chain address; "" for burns
	Amount    int64
	Token     Token
	Fee       int64
	Status    string
	Kind      string // transfer | mint | burn
	Memo      string // human-readable reason
	CreatedAt int64  // ms
}
