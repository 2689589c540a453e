package exchange

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/guard"
	"token-exchange-engine/internal/pricing"
	"token-exchange-engine/internal/storage/memory"
)

var trader = domain.Owner{Kind: domain.OwnerHuman, ID: "trader"}

type capturingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturingPublisher) Publish(eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *capturingPublisher) captured() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type capturingRecorder struct {
	mu    sync.Mutex
	ticks []*domain.MarketTick
}

func (r *capturingRecorder) Record(tick *domain.MarketTick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tick)
}

type fixture struct {
	executor  *Executor
	ledger    *memory.LedgerStore
	pricer    *pricing.Pricer
	publisher *capturingPublisher
	recorder  *capturingRecorder
}

func newFixture(t *testing.T, buyOnly map[domain.OwnerKind][]domain.Token) *fixture {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	ledger := memory.NewLedgerStore()
	pricer := pricing.NewPricer(memory.NewPriceStore(), logger)
	policy := guard.NewPolicy(memory.NewRestrictionStore(nil), buyOnly)
	publisher := &capturingPublisher{}
	recorder := &capturingRecorder{}

	executor := NewExecutor(DefaultConfig(), ledger, pricer, policy, publisher, recorder, logger)
	return &fixture{executor: executor, ledger: ledger, pricer: pricer, publisher: publisher, recorder: recorder}
}

// fund credits balances directly, bypassing the service layer.
func (f *fixture) fund(t *testing.T, owner domain.Owner, token domain.Token, amount int64) {
	t.Helper()
	err := f.ledger.Apply(context.Background(), &domain.Mutation{
		Legs: []domain.Leg{{Owner: owner, Token: token, Amount: amount}},
	})
	if err != nil {
		t.Fatalf("fund %s with %d %s: %v", owner, amount, token, err)
	}
}

func (f *fixture) balance(t *testing.T, owner domain.Owner, token domain.Token) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), owner, token)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b.Amount
}

func TestExecutor_SameMillisecondOrdersGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rapid := domain.Owner{Kind: domain.OwnerHuman, ID: "rapid"}
	f.fund(t, rapid, domain.TokenUSDC, 1_000)
	f.fund(t, rapid, domain.TokenSOL, 10)

	// Pin the clock so both fills carry the same created_at.
	fixed := time.Now()
	f.executor.now = func() time.Time { return fixed }

	order := Order{Owner: rapid, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC}, Side: domain.TradeSideBuy, BaseAmount: 100}
	first, err := f.executor.Execute(ctx, order)
	if err != nil {
		t.Fatalf("first order: %v", err)
	}
	second, err := f.executor.Execute(ctx, order)
	if err != nil {
		t.Fatalf("second order: %v", err)
	}

	if first.ID == second.ID {
		t.Errorf("identical same-millisecond orders share trade ID %s", first.ID)
	}
}

func TestExecutor_BuySettlesAtomically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, trader, domain.TokenUSDC, 1_000)
	f.fund(t, trader, domain.TokenSOL, 10)

	// Seed prices: COIN 0.10 USD, USDC 1.00 USD, so COIN/USDC = 0.1.
	trade, err := f.executor.Execute(ctx, Order{
		Owner: trader, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideBuy, BaseAmount: 100,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if trade.QuoteAmount != 10 {
		t.Errorf("quote amount = %d, want 10", trade.QuoteAmount)
	}
	if trade.Status != domain.TradeStatusFilled {
		t.Errorf("status = %s, want filled", trade.Status)
	}
	if f.balance(t, trader, domain.TokenCoin) != 100 {
		t.Errorf("COIN = %d, want 100", f.balance(t, trader, domain.TokenCoin))
	}
	if f.balance(t, trader, domain.TokenUSDC) != 990 {
		t.Errorf("USDC = %d, want 990", f.balance(t, trader, domain.TokenUSDC))
	}
	if f.balance(t, trader, domain.TokenSOL) != 9 {
		t.Errorf("SOL = %d, want 9 after flat fee", f.balance(t, trader, domain.TokenSOL))
	}
}

func TestExecutor_BuyNudgesPriceUpward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, trader, domain.TokenUSDC, 1_000_000_000)
	f.fund(t, trader, domain.TokenSOL, 10)

	before, err := f.pricer.Price(ctx, domain.TokenCoin)
	if err != nil {
		t.Fatalf("price: %v", err)
	}

	_, err = f.executor.Execute(ctx, Order{
		Owner: trader, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideBuy, BaseAmount: MaxOrderSize,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	after, err := f.pricer.Price(ctx, domain.TokenCoin)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if after <= before {
		t.Errorf("buy must nudge the reference price up: %v -> %v", before, after)
	}
}

func TestExecutor_PublishesAndRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, trader, domain.TokenUSDC, 1_000)
	f.fund(t, trader, domain.TokenSOL, 10)

	_, err := f.executor.Execute(ctx, Order{
		Owner: trader, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideBuy, BaseAmount: 100,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	events := f.publisher.captured()
	if len(events) != 2 || events[0] != "trade" || events[1] != "price" {
		t.Errorf("events = %v, want [trade price]", events)
	}
	if len(f.recorder.ticks) != 1 {
		t.Fatalf("ticks = %d, want 1", len(f.recorder.ticks))
	}
	if f.recorder.ticks[0].Pair != "COIN/USDC" {
		t.Errorf("tick pair = %s, want COIN/USDC", f.recorder.ticks[0].Pair)
	}
}

func TestExecutor_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	coinUSDC := domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC}

	cases := []struct {
		name  string
		order Order
	}{
		{"unknown pair", Order{Owner: trader, Pair: domain.Pair{Base: "ABC", Quote: "DEF"}, Side: domain.TradeSideBuy, BaseAmount: 10}},
		{"zero amount", Order{Owner: trader, Pair: coinUSDC, Side: domain.TradeSideBuy, BaseAmount: 0}},
		{"oversized", Order{Owner: trader, Pair: coinUSDC, Side: domain.TradeSideBuy, BaseAmount: MaxOrderSize + 1}},
		{"bad side", Order{Owner: trader, Pair: coinUSDC, Side: "hold", BaseAmount: 10}},
		{"invalid owner", Order{Pair: coinUSDC, Side: domain.TradeSideBuy, BaseAmount: 10}},
	}
	for _, tc := range cases {
		_, err := f.executor.Execute(ctx, tc.order)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if domain.KindOf(err) != domain.KindValidation {
			t.Errorf("%s: kind = %s, want validation", tc.name, domain.KindOf(err))
		}
	}
}

func TestExecutor_BuyOnlyTokenDeniedForRestrictedKind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[domain.OwnerKind][]domain.Token{
		domain.OwnerPersona: {domain.TokenCoin},
	})

	persona := domain.Owner{Kind: domain.OwnerPersona, ID: "npc-1"}
	for _, owner := range []domain.Owner{persona, trader} {
		f.fund(t, owner, domain.TokenCoin, 1_000)
		f.fund(t, owner, domain.TokenSOL, 10)
	}

	order := Order{
		Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideSell, BaseAmount: 100,
	}

	order.Owner = persona
	_, err := f.executor.Execute(ctx, order)
	if err == nil {
		t.Fatal("persona sell of a buy-only token must be denied")
	}
	if domain.KindOf(err) != domain.KindRestricted {
		t.Errorf("kind = %s, want restricted", domain.KindOf(err))
	}
	// The denial fires before any balance is touched.
	if f.balance(t, persona, domain.TokenCoin) != 1_000 {
		t.Error("denied sell must not move balances")
	}

	// The identical sell by an unrestricted owner succeeds.
	order.Owner = trader
	if _, err := f.executor.Execute(ctx, order); err != nil {
		t.Fatalf("human sell: %v", err)
	}
}

func TestExecutor_FeeBalanceBlocksTrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// Plenty of the traded asset, none of the fee asset.
	f.fund(t, trader, domain.TokenUSDC, 1_000_000)

	_, err := f.executor.Execute(ctx, Order{
		Owner: trader, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideBuy, BaseAmount: 100,
	})
	if err == nil {
		t.Fatal("trade without fee balance must fail")
	}
	if domain.KindOf(err) != domain.KindInsufficientFunds {
		t.Errorf("kind = %s, want insufficient_funds", domain.KindOf(err))
	}
	// Nothing settled.
	if f.balance(t, trader, domain.TokenUSDC) != 1_000_000 {
		t.Error("failed trade must not move balances")
	}
	if len(f.publisher.captured()) != 0 {
		t.Error("failed trade must not publish events")
	}
}

func TestExecutor_InsufficientTradedAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, trader, domain.TokenSOL, 10)
	f.fund(t, trader, domain.TokenUSDC, 5)

	_, err := f.executor.Execute(ctx, Order{
		Owner: trader, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideBuy, BaseAmount: 1_000, // needs 100 USDC
	})
	if domain.KindOf(err) != domain.KindInsufficientFunds {
		t.Fatalf("kind = %s, want insufficient_funds (err=%v)", domain.KindOf(err), err)
	}
}

func TestExecutor_TradeAndAuditRowsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.fund(t, trader, domain.TokenUSDC, 1_000)
	f.fund(t, trader, domain.TokenSOL, 10)

	trade, err := f.executor.Execute(ctx, Order{
		Owner: trader, Pair: domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC},
		Side: domain.TradeSideBuy, BaseAmount: 100,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	trades, err := f.executor.ListTrades(ctx, f.ledger, trader, 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != trade.ID {
		t.Fatalf("expected the settled trade in the log, got %v", trades)
	}

	recent, err := f.ledger.RecentTransactions(ctx, trader, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(recent))
	}
	if recent[0].Status != domain.TxStatusSimulated {
		t.Errorf("audit status = %s, want simulated", recent[0].Status)
	}
}
