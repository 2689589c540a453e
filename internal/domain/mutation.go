package domain

// Leg is one signed balance movement inside a Mutation. Positive amounts
// credit the (owner, token) row, negative amounts debit it. A debit that
// would take the row below zero fails the whole mutation.
type Leg struct {
	Owner  Owner
	Token  Token
	Amount int64
	// Earned marks a credit that counts toward LifetimeEarned
	// (rewards and faucet grants do, trade settlements do not).
	Earned bool
}

// Mutation is the atomic unit applied against the ledger: all legs, the
// optional trade row and all audit entries commit together or not at all.
type Mutation struct {
	Legs    []Leg
	Trade   *Trade
	Entries []*Transaction
}
