package memory

import (
	"context"
	"errors"
	"testing"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

func pendingSwap(id string, units uint64, createdAt int64) *domain.Swap {
	return &domain.Swap{
		ID:           id,
		BuyerAddress: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU",
		UnitAmount:   units,
		QuoteCost:    units * 10_000_000,
		UnitPrice:    10_000_000,
		Status:       domain.SwapStatusPending,
		Blockhash:    "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
		CreatedAt:    createdAt,
	}
}

func TestSwapStore_CompleteExactlyOnce(t *testing.T) {
	s := NewSwapStore()
	ctx := context.Background()

	if err := s.Insert(ctx, pendingSwap("s1", 100, 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first, err := s.Complete(ctx, "s1", "sig1", 2000)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if !first {
		t.Fatal("first confirmation must transition the swap")
	}

	second, err := s.Complete(ctx, "s1", "sig1", 3000)
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if second {
		t.Error("second confirmation must be a no-op")
	}

	swap, _ := s.GetByID(ctx, "s1")
	if swap.CompletedAt != 2000 {
		t.Errorf("completed_at = %d, want first confirmation time 2000", swap.CompletedAt)
	}

	units, _ := s.CompletedUnits(ctx)
	if units != 100 {
		t.Errorf("completed units = %d, want 100 (no double count)", units)
	}
}

func TestSwapStore_CompleteUnknownSwap(t *testing.T) {
	s := NewSwapStore()

	_, err := s.Complete(context.Background(), "missing", "sig", 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSwapStore_CompleteFailedSwapConflicts(t *testing.T) {
	s := NewSwapStore()
	ctx := context.Background()

	s.Insert(ctx, pendingSwap("s1", 10, 1000))
	if err := s.Fail(ctx, "s1"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	_, err := s.Complete(ctx, "s1", "sig", 2000)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict on failed swap, got %v", err)
	}
}

func TestSwapStore_PendingDoesNotCountTowardSold(t *testing.T) {
	s := NewSwapStore()
	ctx := context.Background()

	s.Insert(ctx, pendingSwap("s1", 500, 1000))
	s.Insert(ctx, pendingSwap("s2", 300, 1000))
	s.Complete(ctx, "s2", "sig", 2000)

	units, _ := s.CompletedUnits(ctx)
	if units != 300 {
		t.Errorf("completed units = %d, want 300 (pending excluded)", units)
	}

	n, _ := s.CountCompleted(ctx)
	if n != 1 {
		t.Errorf("completed count = %d, want 1", n)
	}
}

func TestSwapStore_ExpirePending(t *testing.T) {
	s := NewSwapStore()
	ctx := context.Background()

	s.Insert(ctx, pendingSwap("old", 10, 1000))
	s.Insert(ctx, pendingSwap("new", 10, 5000))
	s.Insert(ctx, pendingSwap("done", 10, 1000))
	s.Complete(ctx, "done", "sig", 1500)

	n, err := s.ExpirePending(ctx, 2000)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d swaps, want 1", n)
	}

	old, _ := s.GetByID(ctx, "old")
	if old.Status != domain.SwapStatusFailed {
		t.Errorf("old swap status = %s, want failed", old.Status)
	}
	done, _ := s.GetByID(ctx, "done")
	if done.Status != domain.SwapStatusCompleted {
		t.Error("completed swap must not be expired")
	}
}

func TestSwapStore_ListCompletedByBuyer(t *testing.T) {
	s := NewSwapStore()
	ctx := context.Background()

	a := pendingSwap("a", 10, 1000)
	b := pendingSwap("b", 20, 2000)
	other := pendingSwap("c", 30, 1500)
	other.BuyerAddress = "9yQNfDeGhM8VYLeDkBVjq6MkXyV7xLKxuWrSS5PxkqWV"

	s.Insert(ctx, a)
	s.Insert(ctx, b)
	s.Insert(ctx, other)
	s.Complete(ctx, "a", "sig-a", 3000)
	s.Complete(ctx, "b", "sig-b", 4000)
	s.Complete(ctx, "c", "sig-c", 5000)

	got, err := s.ListCompletedByBuyer(ctx, a.BuyerAddress)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d swaps, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("expected newest first [b a], got [%s %s]", got[0].ID, got[1].ID)
	}
}
