package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program IDs.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// ValidateAddress checks that s is a base58-encoded 32-byte ed25519 public
// key on the curve. Wallet addresses must be on-curve; program derived
// addresses deliberately are not and fail this check.
func ValidateAddress(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("decode base58: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("address is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("address not on ed25519 curve: %w", err)
	}
	return nil
}

// mustDecodeAddress decodes a base58 address that is known to be valid
// (program IDs and already-validated inputs).
func mustDecodeAddress(s string) []byte {
	raw, err := base58.Decode(s)
	if err != nil {
		panic(fmt.Sprintf("invalid address constant %q: %v", s, err))
	}
	return raw
}

// FindAssociatedTokenAddress derives the associated token account for a
// wallet and mint: the first off-curve sha256(seeds|bump|program|"PDA")
// candidate walking bump down from 255.
func FindAssociatedTokenAddress(wallet, mint string) (string, error) {
	walletRaw, err := base58.Decode(wallet)
	if err != nil || len(walletRaw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("decode wallet %q: not a 32-byte key", wallet)
	}
	mintRaw, err := base58.Decode(mint)
	if err != nil || len(mintRaw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("decode mint %q: not a 32-byte key", mint)
	}

	seeds := [][]byte{walletRaw, mustDecodeAddress(TokenProgramID), mintRaw}
	programRaw := mustDecodeAddress(AssociatedTokenProgramID)

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programRaw)
		h.Write([]byte("ProgramDerivedAddress"))
		candidate := h.Sum(nil)

		// A PDA must NOT be a valid curve point.
		if _, err := new(edwards25519.Point).SetBytes(candidate); err != nil {
			return base58.Encode(candidate), nil
		}
	}
	return "", fmt.Errorf("no off-curve address found for wallet %s mint %s", wallet, mint)
}
