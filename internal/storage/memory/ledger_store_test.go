package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

var (
	alice = domain.Owner{Kind: domain.OwnerHuman, ID: "alice"}
	bob   = domain.Owner{Kind: domain.OwnerPersona, ID: "bob"}
)

func credit(owner domain.Owner, token domain.Token, amount int64) *domain.Mutation {
	return &domain.Mutation{Legs: []domain.Leg{{Owner: owner, Token: token, Amount: amount, Earned: true}}}
}

func debit(owner domain.Owner, token domain.Token, amount int64) *domain.Mutation {
	return &domain.Mutation{Legs: []domain.Leg{{Owner: owner, Token: token, Amount: -amount}}}
}

func TestLedgerStore_CreditDebit(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	if err := s.Apply(ctx, credit(alice, domain.TokenCoin, 100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := s.Apply(ctx, debit(alice, domain.TokenCoin, 40)); err != nil {
		t.Fatalf("debit: %v", err)
	}

	b, err := s.Balance(ctx, alice, domain.TokenCoin)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Amount != 60 {
		t.Errorf("amount = %d, want 60", b.Amount)
	}
	if b.LifetimeEarned != 100 {
		t.Errorf("lifetime earned = %d, want 100", b.LifetimeEarned)
	}
}

func TestLedgerStore_DebitBelowZeroFails(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	if err := s.Apply(ctx, credit(alice, domain.TokenCoin, 10)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	err := s.Apply(ctx, debit(alice, domain.TokenCoin, 11))
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	b, _ := s.Balance(ctx, alice, domain.TokenCoin)
	if b.Amount != 10 {
		t.Errorf("failed mutation must not change the balance, got %d", b.Amount)
	}
}

func TestLedgerStore_TransferAllOrNothing(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	if err := s.Apply(ctx, credit(alice, domain.TokenCoin, 50)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Transfer more than alice holds: neither leg may apply.
	transfer := &domain.Mutation{Legs: []domain.Leg{
		{Owner: alice, Token: domain.TokenCoin, Amount: -80},
		{Owner: bob, Token: domain.TokenCoin, Amount: 80},
	}}
	if err := s.Apply(ctx, transfer); !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	bAlice, _ := s.Balance(ctx, alice, domain.TokenCoin)
	bBob, _ := s.Balance(ctx, bob, domain.TokenCoin)
	if bAlice.Amount != 50 || bBob.Amount != 0 {
		t.Errorf("partial transfer observed: alice=%d bob=%d", bAlice.Amount, bBob.Amount)
	}
}

func TestLedgerStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	const start = 100
	if err := s.Apply(ctx, credit(alice, domain.TokenCoin, start)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// 50 goroutines each try to debit 3: at most 33 can succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Apply(ctx, debit(alice, domain.TokenCoin, 3)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	b, _ := s.Balance(ctx, alice, domain.TokenCoin)
	if b.Amount < 0 {
		t.Fatalf("balance went negative: %d", b.Amount)
	}
	if b.Amount != start-int64(succeeded)*3 {
		t.Errorf("balance %d inconsistent with %d successful debits", b.Amount, succeeded)
	}
}

func TestLedgerStore_TradeAndAuditRowsCommitWithLegs(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	if err := s.Apply(ctx, credit(alice, domain.TokenCoin, 100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	m := &domain.Mutation{
		Legs: []domain.Leg{
			{Owner: alice, Token: domain.TokenCoin, Amount: -10},
			{Owner: alice, Token: domain.TokenSOL, Amount: 5},
		},
		Trade: &domain.Trade{ID: "t1", Owner: alice, Side: domain.TradeSideSell, CreatedAt: 2},
		Entries: []*domain.Transaction{
			{Hash: "h1", From: alice.Key(), Token: domain.TokenCoin, Amount: 10, Kind: domain.TxKindTransfer, CreatedAt: 2},
		},
	}
	if err := s.Apply(ctx, m); err != nil {
		t.Fatalf("apply: %v", err)
	}

	trades, err := s.ListByOwner(ctx, alice, 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != "t1" {
		t.Errorf("expected 1 trade t1, got %v", trades)
	}

	txs, err := s.RecentTransactions(ctx, alice, 10)
	if err != nil {
		t.Fatalf("recent transactions: %v", err)
	}
	if len(txs) == 0 || txs[0].Hash != "h1" {
		t.Errorf("expected audit row h1 first, got %v", txs)
	}
}

func TestLedgerStore_MissingRowReadsZero(t *testing.T) {
	s := NewLedgerStore()

	b, err := s.Balance(context.Background(), alice, domain.TokenUSDC)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Amount != 0 || b.LifetimeEarned != 0 {
		t.Errorf("expected zero row, got %+v", b)
	}
}
