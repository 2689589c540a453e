package guard

import (
	"context"
	"testing"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// stubRestrictions maps holder → pinned recipient.
type stubRestrictions map[string]string

func (s stubRestrictions) AllowedRecipient(_ context.Context, holder string) (string, error) {
	if r, ok := s[holder]; ok {
		return r, nil
	}
	return "", storage.ErrNotFound
}

func (s stubRestrictions) List(_ context.Context) ([]*domain.TransferRestriction, error) {
	var out []*domain.TransferRestriction
	for h, r := range s {
		out = append(out, &domain.TransferRestriction{HolderAddress: h, AllowedRecipient: r})
	}
	return out, nil
}

func TestPolicy_UnrestrictedSenderAllowedAnywhere(t *testing.T) {
	p := NewPolicy(stubRestrictions{}, nil)

	if err := p.AllowedTransfer(context.Background(), "alice", "bob"); err != nil {
		t.Errorf("unrestricted sender should be allowed: %v", err)
	}
}

func TestPolicy_RestrictedSenderPinnedRecipient(t *testing.T) {
	p := NewPolicy(stubRestrictions{"treasury": "vault"}, nil)

	if err := p.AllowedTransfer(context.Background(), "treasury", "vault"); err != nil {
		t.Errorf("pinned recipient should be allowed: %v", err)
	}

	err := p.AllowedTransfer(context.Background(), "treasury", "bob")
	if err == nil {
		t.Fatal("non-pinned recipient should be denied")
	}
	if domain.KindOf(err) != domain.KindRestricted {
		t.Errorf("expected restricted kind, got %s", domain.KindOf(err))
	}
}

func TestPolicy_BuyOnlySell(t *testing.T) {
	p := NewPolicy(stubRestrictions{}, map[domain.OwnerKind][]domain.Token{
		domain.OwnerPersona: {domain.TokenNova},
	})

	persona := domain.Owner{Kind: domain.OwnerPersona, ID: "p1"}
	human := domain.Owner{Kind: domain.OwnerHuman, ID: "h1"}

	err := p.AllowedSell(persona, domain.TokenNova)
	if err == nil {
		t.Fatal("persona selling a buy-only token should be denied")
	}
	if domain.KindOf(err) != domain.KindRestricted {
		t.Errorf("expected restricted kind, got %s", domain.KindOf(err))
	}

	if err := p.AllowedSell(human, domain.TokenNova); err != nil {
		t.Errorf("non-restricted owner kind should be allowed: %v", err)
	}
	if err := p.AllowedSell(persona, domain.TokenCoin); err != nil {
		t.Errorf("non-buy-only token should be allowed: %v", err)
	}
}
