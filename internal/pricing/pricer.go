package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// ErrUnavailable reports that a pair rate cannot be computed because the
// quote token has no usable price. It is an explicit signal, never NaN or Inf.
var ErrUnavailable = domain.E(domain.KindExternal, "pricing unavailable")

// Seed prices in USD, written as the first history point the first time a
// token is priced with no history. Unknown tokens seed at zero, which makes
// them unusable as a quote leg until an operator provides a price.
var seedPrices = map[domain.Token]float64{
	domain.TokenCoin: 0.10,
	domain.TokenNova: 0.01,
	domain.TokenSOL:  150.0,
	domain.TokenUSDC: 1.0,
}

// Impact bounds for the post-trade reference price nudge. The relative move
// of a single trade is capped so no order can run the price away.
const (
	impactPerUnit = 1e-9  // relative move per base unit of signed size
	maxImpact     = 0.005 // hard cap per trade, 0.5%
)

// Pricer derives reference USD prices from the append-only price history and
// applies the bounded post-trade impact nudge.
type Pricer struct {
	store  storage.PriceStore
	logger *log.Logger
	now    func() time.Time
}

// NewPricer creates a Pricer over a price history store.
func NewPricer(store storage.PriceStore, logger *log.Logger) *Pricer {
	return &Pricer{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Price returns the current reference USD price for a token: the latest
// history point, or the seed default when the token has no history yet.
// Seeding writes a history point so subsequent reads see a consistent log.
func (p *Pricer) Price(ctx context.Context, token domain.Token) (float64, error) {
	if !token.Valid() {
		return 0, domain.E(domain.KindValidation, "invalid token %q", token)
	}

	point, err := p.store.Latest(ctx, token)
	if err == nil {
		return point.Price, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("load latest price for %s: %w", token, err)
	}

	seed := seedPrices[token]
	if err := p.store.Append(ctx, &domain.PricePoint{
		Token:       token,
		Price:       seed,
		Source:      domain.PriceSourceSeed,
		TimestampMs: p.now().UnixMilli(),
	}); err != nil {
		return 0, fmt.Errorf("seed price for %s: %w", token, err)
	}
	p.logger.Printf("seeded %s reference price at %.6f", token, seed)
	return seed, nil
}

// SetPrice records an operator-provided reference price as a settings
// history point. Later reads return it until the next point lands, which is
// how otherwise-unpriced tokens become usable as a quote leg.
func (p *Pricer) SetPrice(ctx context.Context, token domain.Token, price float64) error {
	if !token.Valid() {
		return domain.E(domain.KindValidation, "invalid token %q", token)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.E(domain.KindValidation, "invalid price %v for %s", price, token)
	}
	if err := p.store.Append(ctx, &domain.PricePoint{
		Token:       token,
		Price:       price,
		Source:      domain.PriceSourceSettings,
		TimestampMs: p.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("append settings point for %s: %w", token, err)
	}
	p.logger.Printf("set %s reference price to %.6f", token, price)
	return nil
}

// PairRate computes price(base)/price(quote). Returns ErrUnavailable when
// the quote price is zero, so callers never divide by zero.
func (p *Pricer) PairRate(ctx context.Context, pair domain.Pair) (float64, error) {
	if !pair.Valid() {
		return 0, domain.E(domain.KindValidation, "invalid pair %s", pair)
	}

	base, err := p.Price(ctx, pair.Base)
	if err != nil {
		return 0, err
	}
	quote, err := p.Price(ctx, pair.Quote)
	if err != nil {
		return 0, err
	}
	if quote == 0 {
		return 0, ErrUnavailable
	}
	return base / quote, nil
}

// Nudge applies the post-trade impact bump to a token's reference price and
// appends one history point. signedSize is positive for buys, negative for
// sells; the relative move is clamped to maxImpact either way.
func (p *Pricer) Nudge(ctx context.Context, token domain.Token, signedSize int64) (float64, error) {
	current, err := p.Price(ctx, token)
	if err != nil {
		return 0, err
	}
	if current == 0 || signedSize == 0 {
		return current, nil
	}

	move := impactPerUnit * float64(signedSize)
	move = math.Max(-maxImpact, math.Min(maxImpact, move))
	next := current * (1 + move)
	if next <= 0 {
		next = current
	}

	if err := p.store.Append(ctx, &domain.PricePoint{
		Token:       token,
		Price:       next,
		Source:      domain.PriceSourceImpact,
		TimestampMs: p.now().UnixMilli(),
	}); err != nil {
		return 0, fmt.Errorf("append impact point for %s: %w", token, err)
	}
	return next, nil
}

// History returns the newest points for a token, newest first.
func (p *Pricer) History(ctx context.Context, token domain.Token, limit int) ([]*domain.PricePoint, error) {
	if !token.Valid() {
		return nil, domain.E(domain.KindValidation, "invalid token %q", token)
	}
	if limit <= 0 {
		limit = 50
	}
	points, err := p.store.History(ctx, token, limit)
	if err != nil {
		return nil, fmt.Errorf("load price history for %s: %w", token, err)
	}
	return points, nil
}
