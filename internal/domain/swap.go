package domain

// Swap status constants. The state machine is forward-only:
// pending → completed on the first confirmation, pending → failed on expiry.
// Completed and failed are terminal.
const (
	SwapStatusPending   = "pending"
	SwapStatusCompleted = "completed"
	SwapStatusFailed    = "failed"
)

// Swap is one custodial bridge order. Created pending when a quote is issued;
// only completed swaps count toward cumulative units sold.
// Corresponds to swaps table in PostgreSQL.
type Swap struct {
	ID           string // deterministic hash, see idhash
	BuyerAddress string // base58 buyer public key
	UnitAmount   uint64 // bridged-token units purchased
	QuoteCost    uint64 // lamports the buyer pays
	UnitPrice    uint64 // lamports per unit locked at creation
	Status       string
	Blockhash    string // recent blockhash the transaction is bound to
	TxSignature  string // buyer-submitted signature, set on completion
	CreatedAt    int64  // ms
	CompletedAt  int64  // ms, 0 while not completed
}

// Terminal reports whether the swap can no longer change state.
func (s *Swap) Terminal() bool {
	return s.Status == SwapStatusCompleted || s.Status == SwapStatusFailed
}
