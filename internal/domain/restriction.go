package domain

// TransferRestriction pins a holder address to exactly one allowed recipient.
// A sender with no row may transfer anywhere; a sender with a row may only
// transfer to AllowedRecipient. Static configuration, never mutated at runtime.
type TransferRestriction struct {
	HolderAddress    string
	AllowedRecipient string
	CreatedAt        int64 // ms
}
