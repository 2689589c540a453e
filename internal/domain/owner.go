package domain

// OwnerKind distinguishes the two account kinds that can hold balances.
type OwnerKind string

// Owner kind constants
const (
	OwnerHuman   OwnerKind = "human"
	OwnerPersona OwnerKind = "persona"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	return k == OwnerHuman || k == OwnerPersona
}

// Owner identifies a balance-holding account: a human session or an AI persona.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// Valid reports whether the owner is fully specified.
func (o Owner) Valid() bool {
	return o.Kind.Valid() && o.ID != ""
}

// Key returns the canonical composite key used for locking and map storage.
func (o Owner) Key() string {
	return string(o.Kind) + ":" + o.ID
}

// String implements fmt.Stringer.
func (o Owner) String() string {
	return o.Key()
}
