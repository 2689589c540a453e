package curve

import "testing"

// The reference curve used across tests: 0.01 SOL base, 0.01 SOL step,
// 10,000-unit tiers.
var testCurve = Curve{
	BasePrice: 10_000_000,
	Increment: 10_000_000,
	TierSize:  10_000,
}

func TestPriceAt_BasePrice(t *testing.T) {
	if got := testCurve.PriceAt(0); got != testCurve.BasePrice {
		t.Errorf("price(0) = %d, want base price %d", got, testCurve.BasePrice)
	}
}

func TestPriceAt_FirstTierBoundary(t *testing.T) {
	want := testCurve.BasePrice + testCurve.Increment
	if got := testCurve.PriceAt(testCurve.TierSize); got != want {
		t.Errorf("price(tier_size) = %d, want %d", got, want)
	}
}

func TestPriceAt_NonDecreasing(t *testing.T) {
	prev := uint64(0)
	for s := uint64(0); s <= 100_000; s += 777 {
		p := testCurve.PriceAt(s)
		if p < prev {
			t.Fatalf("price decreased: price(%d) = %d < %d", s, p, prev)
		}
		prev = p
	}
}

func TestPriceAt_WithinTierConstant(t *testing.T) {
	if testCurve.PriceAt(1) != testCurve.PriceAt(9_999) {
		t.Error("price must be constant within a tier")
	}
	if testCurve.PriceAt(9_999) == testCurve.PriceAt(10_000) {
		t.Error("price must step at the tier boundary")
	}
}

func TestQuote_MidTier(t *testing.T) {
	// 5,000 units at zero sold quote at the base price per unit.
	got := testCurve.Quote(0, 5_000)
	want := testCurve.BasePrice * 5_000
	if got != want {
		t.Errorf("quote = %d, want %d", got, want)
	}
}

func TestQuote_CrossingTierUsesSinglePrice(t *testing.T) {
	// A 15,000-unit order crossing the 10,000 boundary settles entirely at
	// the price in effect at order creation, never split mid-order.
	got := testCurve.Quote(0, 15_000)
	want := testCurve.BasePrice * 15_000
	if got != want {
		t.Errorf("quote = %d, want %d (single order-creation price)", got, want)
	}
}

func TestRemainingInTier(t *testing.T) {
	if got := testCurve.RemainingInTier(0); got != 10_000 {
		t.Errorf("remaining(0) = %d, want 10000", got)
	}
	if got := testCurve.RemainingInTier(9_999); got != 1 {
		t.Errorf("remaining(9999) = %d, want 1", got)
	}
	if got := testCurve.RemainingInTier(10_000); got != 10_000 {
		t.Errorf("remaining(10000) = %d, want 10000", got)
	}
}

func TestNextPrice(t *testing.T) {
	if got := testCurve.NextPrice(0); got != 20_000_000 {
		t.Errorf("next price = %d, want 20000000", got)
	}
}

func TestTier(t *testing.T) {
	cases := []struct {
		sold uint64
		want uint64
	}{
		{0, 0},
		{9_999, 0},
		{10_000, 1},
		{25_000, 2},
	}
	for _, tc := range cases {
		if got := testCurve.Tier(tc.sold); got != tc.want {
			t.Errorf("tier(%d) = %d, want %d", tc.sold, got, tc.want)
		}
	}
}

func TestZeroTierSize_DegradesToFlatPrice(t *testing.T) {
	flat := Curve{BasePrice: 5, Increment: 3, TierSize: 0}
	if got := flat.PriceAt(1_000_000); got != 5 {
		t.Errorf("flat curve price = %d, want 5", got)
	}
	if got := flat.NextPrice(1_000_000); got != 5 {
		t.Errorf("flat curve next price = %d, want 5 (never steps)", got)
	}
}
