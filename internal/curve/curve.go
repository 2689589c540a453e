// Package curve implements the bonding curve that prices the custodial
// bridge swap. The price is a pure function of cumulative completed-swap
// volume: it is recomputed from the authoritative total on every call and
// never cached, so the tier can neither drift nor double-advance.
package curve

// Curve is a stepwise-linear bonding curve over lamports.
//
//	price(S) = BasePrice + floor(S / TierSize) * Increment
type Curve struct {
	BasePrice uint64 // lamports per unit at S = 0
	Increment uint64 // lamports added per completed tier
	TierSize  uint64 // units per tier
}

// PriceAt returns the unit price in lamports after unitsSold cumulative units.
// Strictly non-decreasing in unitsSold.
func (c Curve) PriceAt(unitsSold uint64) uint64 {
	if c.TierSize == 0 {
		return c.BasePrice
	}
	return c.BasePrice + (unitsSold/c.TierSize)*c.Increment
}

// Tier returns the zero-based tier index at unitsSold.
func (c Curve) Tier(unitsSold uint64) uint64 {
	if c.TierSize == 0 {
		return 0
	}
	return unitsSold / c.TierSize
}

// RemainingInTier returns how many units remain before the next price step.
func (c Curve) RemainingInTier(unitsSold uint64) uint64 {
	if c.TierSize == 0 {
		return 0
	}
	return c.TierSize - unitsSold%c.TierSize
}

// NextPrice returns the unit price of the tier after the current one. A
// curve with TierSize zero is flat and never steps.
func (c Curve) NextPrice(unitsSold uint64) uint64 {
	if c.TierSize == 0 {
		return c.BasePrice
	}
	return c.PriceAt(unitsSold) + c.Increment
}

// Quote returns the total cost in lamports for unitAmount units at the price
// in effect at unitsSold. An order that crosses a tier boundary settles
// entirely at the order-creation price; it is never split mid-order.
func (c Curve) Quote(unitsSold, unitAmount uint64) uint64 {
	return c.PriceAt(unitsSold) * unitAmount
}
