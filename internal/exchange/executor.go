// Package exchange settles simulated market trades against the ledger.
// A trade debits the input asset and the fee asset, credits the output
// asset, nudges the reference price and appends immutable trade and audit
// rows, all in one atomic mutation.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/guard"
	"token-exchange-engine/internal/idhash"
	"token-exchange-engine/internal/pricing"
	"token-exchange-engine/internal/storage"
)

// Order size bounds in base-token units.
const (
	MinOrderSize = 1
	MaxOrderSize = 10_000_000
)

// Publisher receives market events for fan-out. Satisfied by feed.Hub.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// TickRecorder receives settled-trade ticks for analytics.
// Satisfied by marketdata.Recorder.
type TickRecorder interface {
	Record(tick *domain.MarketTick)
}

// Config holds executor tuning.
type Config struct {
	// FeeAsset is the fixed asset every trade pays its fee in,
	// independent of the traded pair.
	FeeAsset domain.Token
	// FeeAmount is the flat fee in FeeAsset base units.
	FeeAmount int64
	// Pairs lists the tradable pairs. Orders on any other pair are rejected.
	Pairs []domain.Pair
}

// DefaultConfig returns the default trading configuration.
func DefaultConfig() Config {
	return Config{
		FeeAsset:  domain.TokenSOL,
		FeeAmount: 1,
		Pairs: []domain.Pair{
			{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
			{Base: domain.TokenNova, Quote: domain.TokenUSDC},
			{Base: domain.TokenSOL, Quote: domain.TokenUSDC},
			{Base: domain.TokenCoin, Quote: domain.TokenSOL},
		},
	}
}

// Order is one market order request.
type Order struct {
	Owner      domain.Owner
	Pair       domain.Pair
	Side       string // "buy" | "sell"
	BaseAmount int64  // size in base-token units
}

// Executor validates, prices and settles market orders.
type Executor struct {
	config    Config
	pairs     map[domain.Pair]bool
	ledger    storage.LedgerStore
	pricer    *pricing.Pricer
	policy    *guard.Policy
	publisher Publisher
	recorder  TickRecorder
	logger    *log.Logger
	now       func() time.Time
	seq       atomic.Uint64 // trade ID nonce; keeps same-millisecond duplicates distinct
}

// NewExecutor creates an Executor. publisher and recorder may be nil;
// settlement then skips the corresponding side effect.
func NewExecutor(config Config, ledger storage.LedgerStore, pricer *pricing.Pricer, policy *guard.Policy, publisher Publisher, recorder TickRecorder, logger *log.Logger) *Executor {
	pairs := make(map[domain.Pair]bool, len(config.Pairs))
	for _, p := range config.Pairs {
		pairs[p] = true
	}
	return &Executor{
		config:    config,
		pairs:     pairs,
		ledger:    ledger,
		pricer:    pricer,
		policy:    policy,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute settles one market order. Validation and policy failures happen
// before any balance is touched; settlement is a single atomic mutation.
func (e *Executor) Execute(ctx context.Context, order Order) (*domain.Trade, error) {
	if err := e.validate(order); err != nil {
		return nil, err
	}

	// Policy check before any pricing or mutation. A restricted seller
	// fails with a distinct kind, never with a funds error.
	if order.Side == domain.TradeSideSell && e.policy != nil {
		if err := e.policy.AllowedSell(order.Owner, order.Pair.Base); err != nil {
			return nil, err
		}
	}

	rate, err := e.pricer.PairRate(ctx, order.Pair)
	if err != nil {
		return nil, err
	}

	quoteAmount := int64(math.Round(float64(order.BaseAmount) * rate))
	if quoteAmount <= 0 {
		return nil, domain.E(domain.KindValidation,
			"order of %d %s settles below one %s unit", order.BaseAmount, order.Pair.Base, order.Pair.Quote)
	}

	now := e.now().UnixMilli()
	trade := &domain.Trade{
		ID:          idhash.ComputeTradeID(order.Owner, order.Pair, order.Side, order.BaseAmount, now, e.seq.Add(1)),
		Owner:       order.Owner,
		Pair:        order.Pair,
		Side:        order.Side,
		BaseAmount:  order.BaseAmount,
		QuoteAmount: quoteAmount,
		Price:       rate,
		FeeAmount:   e.config.FeeAmount,
		Status:      domain.TradeStatusFilled,
		CreatedAt:   now,
	}

	m := &domain.Mutation{
		Legs:    e.settlementLegs(order, quoteAmount),
		Trade:   trade,
		Entries: []*domain.Transaction{e.auditRow(order, trade)},
	}
	if err := e.ledger.Apply(ctx, m); err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return nil, domain.E(domain.KindInsufficientFunds,
				"insufficient balance to %s %d %s", order.Side, order.BaseAmount, order.Pair)
		}
		return nil, fmt.Errorf("settle trade %s: %w", trade.ID, err)
	}

	e.afterSettlement(ctx, order, trade)
	return trade, nil
}

// ListTrades returns an owner's trades, newest first.
func (e *Executor) ListTrades(ctx context.Context, trades storage.TradeStore, owner domain.Owner, limit int) ([]*domain.Trade, error) {
	if !owner.Valid() {
		return nil, domain.E(domain.KindValidation, "invalid owner")
	}
	if limit <= 0 {
		limit = 50
	}
	out, err := trades.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return out, nil
}

func (e *Executor) validate(order Order) error {
	if !order.Owner.Valid() {
		return domain.E(domain.KindValidation, "invalid owner")
	}
	if order.Side != domain.TradeSideBuy && order.Side != domain.TradeSideSell {
		return domain.E(domain.KindValidation, "invalid side %q", order.Side)
	}
	if !e.pairs[order.Pair] {
		return domain.E(domain.KindValidation, "unknown pair %s", order.Pair)
	}
	if order.BaseAmount < MinOrderSize || order.BaseAmount > MaxOrderSize {
		return domain.E(domain.KindValidation,
			"amount %d outside [%d, %d]", order.BaseAmount, MinOrderSize, MaxOrderSize)
	}
	return nil
}

// settlementLegs builds the signed balance movements for an order. The fee
// is its own leg against the fixed fee asset; the store nets legs per
// (owner, token) row, so a fee in the debited asset simply deepens that debit.
func (e *Executor) settlementLegs(order Order, quoteAmount int64) []domain.Leg {
	var legs []domain.Leg
	if order.Side == domain.TradeSideBuy {
		legs = []domain.Leg{
			{Owner: order.Owner, Token: order.Pair.Quote, Amount: -quoteAmount},
			{Owner: order.Owner, Token: order.Pair.Base, Amount: order.BaseAmount},
		}
	} else {
		legs = []domain.Leg{
			{Owner: order.Owner, Token: order.Pair.Base, Amount: -order.BaseAmount},
			{Owner: order.Owner, Token: order.Pair.Quote, Amount: quoteAmount},
		}
	}
	if e.config.FeeAmount > 0 {
		legs = append(legs, domain.Leg{
			Owner:  order.Owner,
			Token:  e.config.FeeAsset,
			Amount: -e.config.FeeAmount,
		})
	}
	return legs
}

func (e *Executor) auditRow(order Order, trade *domain.Trade) *domain.Transaction {
	memo := fmt.Sprintf("market %s %d %s", order.Side, order.BaseAmount, order.Pair)
	row := &domain.Transaction{
		Amount:    order.BaseAmount,
		Token:     order.Pair.Base,
		Fee:       trade.FeeAmount,
		Status:    domain.TxStatusSimulated,
		Kind:      domain.TxKindTransfer,
		Memo:      memo,
		CreatedAt: trade.CreatedAt,
	}
	if order.Side == domain.TradeSideBuy {
		row.To = order.Owner.Key()
	} else {
		row.From = order.Owner.Key()
	}
	row.Hash = idhash.ComputeAuditHash(row.Kind, row.From, row.To, row.Token, row.Amount, memo, row.CreatedAt)
	return row
}

// afterSettlement runs the post-commit side effects: the reference price
// nudge, the feed broadcast and the analytics tick. None of them can fail
// the already-settled trade.
func (e *Executor) afterSettlement(ctx context.Context, order Order, trade *domain.Trade) {
	signed := trade.BaseAmount
	if order.Side == domain.TradeSideSell {
		signed = -signed
	}
	nudged, err := e.pricer.Nudge(ctx, order.Pair.Base, signed)
	if err != nil {
		e.logger.Printf("price nudge after trade %s: %v", trade.ID, err)
	}

	if e.publisher != nil {
		e.publisher.Publish("trade", map[string]interface{}{
			"id":           trade.ID,
			"pair":         trade.Pair.String(),
			"side":         trade.Side,
			"base_amount":  trade.BaseAmount,
			"quote_amount": trade.QuoteAmount,
			"price":        trade.Price,
		})
		if err == nil {
			e.publisher.Publish("price", map[string]interface{}{
				"token": string(order.Pair.Base),
				"price": nudged,
			})
		}
	}

	if e.recorder != nil {
		e.recorder.Record(&domain.MarketTick{
			Pair:        trade.Pair.String(),
			Side:        trade.Side,
			Price:       trade.Price,
			BaseAmount:  trade.BaseAmount,
			TimestampMs: trade.CreatedAt,
		})
	}

	e.logger.Printf("filled %s %s %d %s at %.6f", trade.Side, trade.Pair, trade.BaseAmount, trade.Pair.Base, trade.Price)
}
