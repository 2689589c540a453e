package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
	pgstore "token-exchange-engine/internal/storage/postgres"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func TestLedgerStore_CreditDebit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewLedgerStore(pool)
	owner := domain.Owner{Kind: domain.OwnerHuman, ID: "alice"}

	err := store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{{Owner: owner, Token: domain.TokenCoin, Amount: 500, Earned: true}},
	})
	require.NoError(t, err)

	err = store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{{Owner: owner, Token: domain.TokenCoin, Amount: -120}},
	})
	require.NoError(t, err)

	bal, err := store.Balance(ctx, owner, domain.TokenCoin)
	require.NoError(t, err)
	require.Equal(t, int64(380), bal.Amount)
	require.Equal(t, int64(500), bal.LifetimeEarned, "debits must not reduce lifetime earned")
}

func TestLedgerStore_MissingRowIsZeroBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewLedgerStore(pool)

	bal, err := store.Balance(ctx, domain.Owner{Kind: domain.OwnerHuman, ID: "nobody"}, domain.TokenCoin)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.Amount)
	require.Equal(t, int64(0), bal.LifetimeEarned)
}

func TestLedgerStore_OverdraftRejectedAtomically(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewLedgerStore(pool)
	alice := domain.Owner{Kind: domain.OwnerHuman, ID: "alice"}
	bob := domain.Owner{Kind: domain.OwnerHuman, ID: "bob"}

	require.NoError(t, store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{{Owner: alice, Token: domain.TokenCoin, Amount: 50, Earned: true}},
	}))

	// Transfer exceeding the balance must leave both sides untouched.
	err := store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{
			{Owner: alice, Token: domain.TokenCoin, Amount: -80},
			{Owner: bob, Token: domain.TokenCoin, Amount: 80},
		},
	})
	require.ErrorIs(t, err, storage.ErrInsufficientFunds)

	aliceBal, err := store.Balance(ctx, alice, domain.TokenCoin)
	require.NoError(t, err)
	require.Equal(t, int64(50), aliceBal.Amount)

	bobBal, err := store.Balance(ctx, bob, domain.TokenCoin)
	require.NoError(t, err)
	require.Equal(t, int64(0), bobBal.Amount)
}

func TestLedgerStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewLedgerStore(pool)
	owner := domain.Owner{Kind: domain.OwnerHuman, ID: "alice"}

	require.NoError(t, store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{{Owner: owner, Token: domain.TokenCoin, Amount: 100, Earned: true}},
	}))

	// 20 goroutines each try to debit 10; only 10 can succeed.
	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Apply(ctx, &domain.Mutation{
				Legs: []domain.Leg{{Owner: owner, Token: domain.TokenCoin, Amount: -10}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, storage.ErrInsufficientFunds) {
				t.Errorf("unexpected apply error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)

	bal, err := store.Balance(ctx, owner, domain.TokenCoin)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.Amount, "balance must never go negative under concurrency")
}

func TestLedgerStore_TradeAndEntriesCommitWithSettlement(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewLedgerStore(pool)
	owner := domain.Owner{Kind: domain.OwnerHuman, ID: "alice"}
	created := nowMs()

	require.NoError(t, store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{
			{Owner: owner, Token: domain.TokenUSDC, Amount: 1000, Earned: true},
			{Owner: owner, Token: domain.TokenSOL, Amount: 10, Earned: true},
		},
	}))

	pair := domain.Pair{Base: domain.TokenCoin, Quote: domain.TokenUSDC}
	trade := &domain.Trade{
		ID:          "trade-abc",
		Owner:       owner,
		Pair:        pair,
		Side:        "buy",
		BaseAmount:  100,
		QuoteAmount: 10,
		Price:       0.10,
		FeeAmount:   1,
		Status:      domain.TradeStatusFilled,
		CreatedAt:   created,
	}
	entry := &domain.Transaction{
		Hash:      "audit-abc",
		To:        owner.Key(),
		Amount:    100,
		Token:     domain.TokenCoin,
		Fee:       1,
		Status:    domain.TxStatusSimulated,
		Kind:      domain.TxKindTransfer,
		Memo:      "buy 100 COIN/USDC",
		CreatedAt: created,
	}

	err := store.Apply(ctx, &domain.Mutation{
		Legs: []domain.Leg{
			{Owner: owner, Token: domain.TokenUSDC, Amount: -10},
			{Owner: owner, Token: domain.TokenCoin, Amount: 100},
			{Owner: owner, Token: domain.TokenSOL, Amount: -1},
		},
		Trade:   trade,
		Entries: []*domain.Transaction{entry},
	})
	require.NoError(t, err)

	trades, err := store.ListByOwner(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "trade-abc", trades[0].ID)
	require.Equal(t, "COIN/USDC", trades[0].Pair.String())
	require.Equal(t, int64(100), trades[0].BaseAmount)

	recent, err := store.RecentTransactions(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "audit-abc", recent[0].Hash)
	require.Equal(t, domain.TxKindTransfer, recent[0].Kind)

	coin, err := store.Balance(ctx, owner, domain.TokenCoin)
	require.NoError(t, err)
	require.Equal(t, int64(100), coin.Amount)
	require.Equal(t, int64(0), coin.LifetimeEarned, "settlement credits do not count as earned")
}

func TestLedgerStore_EntryOnlyMutation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := pgstore.NewLedgerStore(pool)
	owner := domain.Owner{Kind: domain.OwnerHuman, ID: "alice"}

	err := store.Apply(ctx, &domain.Mutation{
		Entries: []*domain.Transaction{{
			Hash:      "sig-xyz",
			From:      "treasury-addr",
			To:        "buyer-addr",
			Amount:    2000,
			Token:     domain.TokenNova,
			Status:    domain.TxStatusConfirmed,
			Kind:      domain.TxKindTransfer,
			Memo:      "bridge swap abc",
			CreatedAt: nowMs(),
		}},
	})
	require.NoError(t, err)

	// The audit row landed without touching any balance.
	bal, err := store.BalancesByOwner(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, bal)
}

func TestLedgerStore_EmptyMutationRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewLedgerStore(pool)

	err := store.Apply(context.Background(), &domain.Mutation{})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
