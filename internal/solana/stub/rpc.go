package stub

import (
	"context"
	"errors"

	"token-exchange-engine/internal/solana"
)

// ErrUnavailable simulates an unreachable RPC endpoint.
var ErrUnavailable = errors.New("rpc unavailable")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Balances      map[string]uint64 // pubkey → lamports
	TokenBalances map[string]uint64 // token account → raw amount
	Accounts      map[string]*solana.AccountInfo
	Hash          *solana.Blockhash
	SentTxs       []string // base64 payloads passed to SendTransaction
	SendSignature string
	Down          bool // every call fails with ErrUnavailable
}

// NewRPCClient creates a new stub RPC client with a fixed blockhash.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]uint64),
		Accounts:      make(map[string]*solana.AccountInfo),
		Hash: &solana.Blockhash{
			Blockhash:            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			LastValidBlockHeight: 250_000_000,
		},
		SendSignature: "stub-signature",
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetBalance retrieves the lamport balance from the stub store.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	if c.Down {
		return 0, ErrUnavailable
	}
	return c.Balances[pubkey], nil
}

// GetTokenAccountBalance retrieves the token amount from the stub store.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, tokenAccount string) (uint64, error) {
	if c.Down {
		return 0, ErrUnavailable
	}
	return c.TokenBalances[tokenAccount], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	if c.Down {
		return nil, ErrUnavailable
	}
	return c.Hash, nil
}

// GetAccountInfo retrieves account info from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if c.Down {
		return nil, ErrUnavailable
	}
	return c.Accounts[pubkey], nil
}

// SendTransaction records the payload and returns the configured signature.
func (c *RPCClient) SendTransaction(_ context.Context, signedTxBase64 string) (string, error) {
	if c.Down {
		return "", ErrUnavailable
	}
	c.SentTxs = append(c.SentTxs, signedTxBase64)
	return c.SendSignature, nil
}
