// Package ledger exposes the balance operations the rest of the engine
// builds on: credits, debits, atomic transfers and lazy wallet creation.
// Every mutation goes through storage.LedgerStore.Apply so balance updates
// and audit rows always commit together.
package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/guard"
	"token-exchange-engine/internal/idhash"
	"token-exchange-engine/internal/storage"
)

// View is the aggregate returned for a balance lookup: current holdings,
// lifetime earnings and the newest audit rows touching the owner.
type View struct {
	Balances []*domain.Balance
	Recent   []*domain.Transaction
}

// Service implements the balance operations over a LedgerStore.
type Service struct {
	ledger  storage.LedgerStore
	wallets storage.WalletStore
	policy  *guard.Policy
	logger  *log.Logger
	now     func() time.Time
}

// NewService creates a ledger Service.
func NewService(ledger storage.LedgerStore, wallets storage.WalletStore, policy *guard.Policy, logger *log.Logger) *Service {
	return &Service{
		ledger:  ledger,
		wallets: wallets,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

// Balance returns the current (owner, token) row. Missing rows read as zero.
func (s *Service) Balance(ctx context.Context, owner domain.Owner, token domain.Token) (*domain.Balance, error) {
	if !owner.Valid() {
		return nil, domain.E(domain.KindValidation, "invalid owner")
	}
	if !token.Valid() {
		return nil, domain.E(domain.KindValidation, "invalid token %q", token)
	}
	b, err := s.ledger.Balance(ctx, owner, token)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return b, nil
}

// Credit adds amount to the (owner, token) row. Not idempotent: callers
// granting rewards must dedupe on their side. earned marks grants that count
// toward lifetime earnings (faucets and rewards do, settlements do not).
func (s *Service) Credit(ctx context.Context, owner domain.Owner, token domain.Token, amount int64, earned bool, memo string) (*domain.Balance, error) {
	if err := validateMovement(owner, token, amount); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	entry := &domain.Transaction{
		Hash:      idhash.ComputeAuditHash(domain.TxKindMint, "", owner.Key(), token, amount, memo, now),
		To:        owner.Key(),
		Amount:    amount,
		Token:     token,
		Status:    domain.TxStatusConfirmed,
		Kind:      domain.TxKindMint,
		Memo:      memo,
		CreatedAt: now,
	}
	m := &domain.Mutation{
		Legs:    []domain.Leg{{Owner: owner, Token: token, Amount: amount, Earned: earned}},
		Entries: []*domain.Transaction{entry},
	}
	if err := s.ledger.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("credit %d %s to %s: %w", amount, token, owner, err)
	}

	s.logger.Printf("credited %d %s to %s (%s)", amount, token, owner, memo)
	return s.ledger.Balance(ctx, owner, token)
}

// Debit removes amount from the (owner, token) row. Fails with an
// insufficient-funds error when amount exceeds the balance.
func (s *Service) Debit(ctx context.Context, owner domain.Owner, token domain.Token, amount int64, memo string) (*domain.Balance, error) {
	if err := validateMovement(owner, token, amount); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	entry := &domain.Transaction{
		Hash:      idhash.ComputeAuditHash(domain.TxKindBurn, owner.Key(), "", token, amount, memo, now),
		From:      owner.Key(),
		Amount:    amount,
		Token:     token,
		Status:    domain.TxStatusConfirmed,
		Kind:      domain.TxKindBurn,
		Memo:      memo,
		CreatedAt: now,
	}
	m := &domain.Mutation{
		Legs:    []domain.Leg{{Owner: owner, Token: token, Amount: -amount}},
		Entries: []*domain.Transaction{entry},
	}
	if err := s.ledger.Apply(ctx, m); err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return nil, domain.E(domain.KindInsufficientFunds,
				"insufficient %s balance for %s", token, owner)
		}
		return nil, fmt.Errorf("debit %d %s from %s: %w", amount, token, owner, err)
	}
	return s.ledger.Balance(ctx, owner, token)
}

// Transfer moves amount from one owner to another as a single atomic
// mutation: both legs commit or neither does. The transfer policy is
// consulted before any balance is touched.
func (s *Service) Transfer(ctx context.Context, from, to domain.Owner, token domain.Token, amount int64, memo string) error {
	if err := validateMovement(from, token, amount); err != nil {
		return err
	}
	if !to.Valid() {
		return domain.E(domain.KindValidation, "invalid recipient")
	}
	if from == to {
		return domain.E(domain.KindValidation, "transfer to self")
	}

	if s.policy != nil {
		if err := s.policy.AllowedTransfer(ctx, from.Key(), to.Key()); err != nil {
			return err
		}
	}

	now := s.now().UnixMilli()
	entry := &domain.Transaction{
		Hash:      idhash.ComputeAuditHash(domain.TxKindTransfer, from.Key(), to.Key(), token, amount, memo, now),
		From:      from.Key(),
		To:        to.Key(),
		Amount:    amount,
		Token:     token,
		Status:    domain.TxStatusConfirmed,
		Kind:      domain.TxKindTransfer,
		Memo:      memo,
		CreatedAt: now,
	}
	m := &domain.Mutation{
		Legs: []domain.Leg{
			{Owner: from, Token: token, Amount: -amount},
			{Owner: to, Token: token, Amount: amount},
		},
		Entries: []*domain.Transaction{entry},
	}
	if err := s.ledger.Apply(ctx, m); err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			return domain.E(domain.KindInsufficientFunds,
				"insufficient %s balance for %s", token, from)
		}
		return fmt.Errorf("transfer %d %s from %s to %s: %w", amount, token, from, to, err)
	}

	s.logger.Printf("transferred %d %s from %s to %s", amount, token, from, to)
	return nil
}

// EnsureWallet returns the owner's chain wallet, creating one with a fresh
// ed25519 keypair on first use. A concurrent create loses the race cleanly
// and re-reads the winner's row.
func (s *Service) EnsureWallet(ctx context.Context, owner domain.Owner) (*domain.Wallet, error) {
	if !owner.Valid() {
		return nil, domain.E(domain.KindValidation, "invalid owner")
	}

	w, err := s.wallets.GetByOwner(ctx, owner)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load wallet: %w", err)
	}

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	w = &domain.Wallet{
		Owner:        owner,
		ChainAddress: base58.Encode(pub),
		CreatedAt:    s.now().UnixMilli(),
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return s.wallets.GetByOwner(ctx, owner)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}

	s.logger.Printf("created wallet %s for %s", w.ChainAddress, owner)
	return w, nil
}

// LedgerView returns every non-zero balance plus the newest audit rows for
// an owner.
func (s *Service) LedgerView(ctx context.Context, owner domain.Owner, recentLimit int) (*View, error) {
	if !owner.Valid() {
		return nil, domain.E(domain.KindValidation, "invalid owner")
	}
	if recentLimit <= 0 {
		recentLimit = 20
	}

	balances, err := s.ledger.BalancesByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	recent, err := s.ledger.RecentTransactions(ctx, owner, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("load recent transactions: %w", err)
	}
	return &View{Balances: balances, Recent: recent}, nil
}

func validateMovement(owner domain.Owner, token domain.Token, amount int64) error {
	if !owner.Valid() {
		return domain.E(domain.KindValidation, "invalid owner")
	}
	if !token.Valid() {
		return domain.E(domain.KindValidation, "invalid token %q", token)
	}
	if amount <= 0 {
		return domain.E(domain.KindValidation, "amount must be positive, got %d", amount)
	}
	return nil
}
