package domain

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// TradeStatusFilled is the only status a persisted trade can have;
// trades that fail validation or settlement are never recorded.
const TradeStatusFilled = "filled"

// Trade is one settled exchange against a pair. Append-only: rows are
// never updated after creation. Corresponds to trades table.
type Trade struct {
	ID          string // deterministic hash, see idhash
	Owner       Owner
	Pair        Pair
	Side        string // "buy" | "sell"
	BaseAmount  int64  // traded size in base-token units
	QuoteAmount int64  // settled size in quote-token units
	Price       float64
	FeeAmount   int64 // fee charged in the fee asset
	Status      string
	CreatedAt   int64 // ms
}
