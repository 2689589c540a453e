// Package guard holds the cross-cutting checks consulted before any ledger
// or transaction construction: transfer restrictions and rate limiting.
package guard

import (
	"context"
	"errors"
	"fmt"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// Policy evaluates transfer restrictions. Default allow: a sender with no
// restriction row may transfer anywhere; a restricted sender may only
// transfer to its single pinned recipient. Sell restrictions mark tokens as
// buy-only for specific owner kinds.
type Policy struct {
	restrictions storage.RestrictionStore
	buyOnly      map[domain.OwnerKind]map[domain.Token]bool
}

// DefaultBuyOnly marks the reward token as buy-only for personas: they earn
// and spend it but never sell it back to the market.
func DefaultBuyOnly() map[domain.OwnerKind][]domain.Token {
	return map[domain.OwnerKind][]domain.Token{
		domain.OwnerPersona: {domain.TokenCoin},
	}
}

// NewPolicy creates a Policy. buyOnly lists, per owner kind, the tokens that
// kind may acquire but never sell.
func NewPolicy(restrictions storage.RestrictionStore, buyOnly map[domain.OwnerKind][]domain.Token) *Policy {
	denied := make(map[domain.OwnerKind]map[domain.Token]bool, len(buyOnly))
	for kind, tokens := range buyOnly {
		m := make(map[domain.Token]bool, len(tokens))
		for _, t := range tokens {
			m[t] = true
		}
		denied[kind] = m
	}
	return &Policy{restrictions: restrictions, buyOnly: denied}
}

// AllowedTransfer checks whether sender may transfer to recipient.
// Returns a restricted-kind error naming the denial, nil when allowed.
func (p *Policy) AllowedTransfer(ctx context.Context, sender, recipient string) error {
	if p.restrictions == nil {
		return nil
	}

	allowed, err := p.restrictions.AllowedRecipient(ctx, sender)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil // unrestricted sender
		}
		return fmt.Errorf("look up transfer restriction: %w", err)
	}

	if recipient != allowed {
		return domain.E(domain.KindRestricted,
			"sender %s may only transfer to %s", sender, allowed)
	}
	return nil
}

// AllowedSell checks whether owner may sell token. Buy-only tokens are denied
// for the configured owner kinds before any balance is touched.
func (p *Policy) AllowedSell(owner domain.Owner, token domain.Token) error {
	if p.buyOnly[owner.Kind][token] {
		return domain.E(domain.KindRestricted,
			"%s accounts may not sell %s", owner.Kind, token)
	}
	return nil
}
