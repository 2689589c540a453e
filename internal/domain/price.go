package domain

// Price point source constants
const (
	PriceSourceSeed     = "seed"     // documented default, written on first use
	PriceSourceSettings = "settings" // operator-provided reference value
	PriceSourceImpact   = "impact"   // trade price-impact nudge
)

// PricePoint is one row of the append-only reference price history.
// The current price of a token is the latest point; there is no mutable
// "current price" field anywhere.
type PricePoint struct {
	Token       Token
	Price       float64 // reference price in USD
	Source      string
	TimestampMs int64
}

// MarketTick is one analytics row mirrored into ClickHouse for market
// display: a settled trade or price move on a pair.
type MarketTick struct {
	Pair        string
	Side        string
	Price       float64
	BaseAmount  int64
	TimestampMs int64
}
