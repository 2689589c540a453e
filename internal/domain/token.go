package domain

import "strings"

// Token is a fungible unit tracked by the ledger. A fixed set of tokens is
// first-class; any other non-empty symbol is accepted as a generic external
// token so listings can be extended without schema changes.
type Token string

// First-class tokens
const (
	// TokenCoin is the platform's native reward unit.
	TokenCoin Token = "COIN"
	// TokenNova is the custodially-issued on-chain token bridged via the swap path.
	TokenNova Token = "NVA"
	// TokenSOL is the chain-native asset; fees and swap quotes are paid in it.
	TokenSOL Token = "SOL"
	// TokenUSDC is the external stable asset.
	TokenUSDC Token = "USDC"
)

// Known reports whether t is one of the first-class tokens.
func (t Token) Known() bool {
	switch t {
	case TokenCoin, TokenNova, TokenSOL, TokenUSDC:
		return true
	}
	return false
}

// Valid reports whether t can be tracked by the ledger at all.
func (t Token) Valid() bool {
	return t != ""
}

// Pair is an ordered base/quote token pair.
type Pair struct {
	Base  Token
	Quote Token
}

// String renders the pair as "BASE/QUOTE".
func (p Pair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// Valid reports whether both legs are tracked tokens and distinct.
func (p Pair) Valid() bool {
	return p.Base.Valid() && p.Quote.Valid() && p.Base != p.Quote
}

// ParsePair parses "BASE/QUOTE" into a Pair.
func ParsePair(s string) (Pair, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Pair{}, false
	}
	p := Pair{
		Base:  Token(strings.ToUpper(strings.TrimSpace(parts[0]))),
		Quote: Token(strings.ToUpper(strings.TrimSpace(parts[1]))),
	}
	if !p.Valid() {
		return Pair{}, false
	}
	return p, true
}
