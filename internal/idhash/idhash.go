package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"token-exchange-engine/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(owner_key|pair|side|base_amount|created_at|nonce)
// The nonce keeps identical orders placed in the same millisecond distinct.
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(owner domain.Owner, pair domain.Pair, side string, baseAmount int64, createdAt int64, nonce uint64) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%d",
		owner.Key(),
		pair.String(),
		side,
		baseAmount,
		createdAt,
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeSwapID computes a deterministic swap_id using SHA256.
// Formula: SHA256(buyer_address|unit_amount|blockhash|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeSwapID(buyerAddress string, unitAmount uint64, blockhash string, createdAt int64) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		buyerAddress,
		unitAmount,
		blockhash,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeAuditHash computes the synthetic hash for a ledger audit row.
// Formula: SHA256(kind|from|to|token|amount|memo|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeAuditHash(kind, from, to string, token domain.Token, amount int64, memo string, createdAt int64) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%s|%d",
		kind,
		from,
		to,
		string(token),
		amount,
		memo,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
