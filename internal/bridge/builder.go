// Package bridge builds and confirms custodial on-chain swaps: a buyer pays
// SOL to the treasury and receives bridged tokens from custodial inventory,
// both steps in one atomic transaction partially signed by the custodian.
package bridge

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"token-exchange-engine/internal/curve"
	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/guard"
	"token-exchange-engine/internal/idhash"
	"token-exchange-engine/internal/solana"
	"token-exchange-engine/internal/storage"
)

// Config holds bridge tuning.
type Config struct {
	// Enabled gates swap creation without unloading the rest of the bridge.
	Enabled bool
	// TokenMint is the bridged token's mint address.
	TokenMint string
	// Curve prices the swap from cumulative completed units.
	Curve curve.Curve
	// MinPurchase and MaxPurchase bound unit_amount.
	MinPurchase uint64
	MaxPurchase uint64
	// DustThreshold rejects quotes below this many lamports.
	DustThreshold uint64
	// PendingTTL is how long a pending swap stays confirmable before the
	// sweeper fails it.
	PendingTTL time.Duration
	// RPCTimeout bounds every chain read during swap creation.
	RPCTimeout time.Duration
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Curve: curve.Curve{
			BasePrice: 10_000_000, // 0.01 SOL
			Increment: 10_000_000,
			TierSize:  10_000,
		},
		MinPurchase:   1,
		MaxPurchase:   100_000,
		DustThreshold: 1_000,
		PendingTTL:    10 * time.Minute,
		RPCTimeout:    10 * time.Second,
	}
}

// SwapArtifact is returned to the buyer: the partially signed transaction
// plus the terms it encodes. The buyer adds their signature and submits.
type SwapArtifact struct {
	SwapID        string
	UnsignedTxB64 string
	UnitAmount    uint64
	QuoteCost     uint64
	UnitPrice     uint64
	ExpiresAt     int64 // ms
}

// SwapConfigDoc is the public swap configuration document.
type SwapConfigDoc struct {
	Enabled         bool             `json:"enabled"`
	UnitPrice       uint64           `json:"unit_price"`
	AvailableSupply uint64           `json:"available_supply"`
	MinPurchase     uint64           `json:"min_purchase"`
	MaxPurchase     uint64           `json:"max_purchase"`
	BondingCurve    BondingCurveView `json:"bonding_curve"`
	Stats           SwapStats        `json:"stats"`
}

// BondingCurveView is the client-facing curve position.
type BondingCurveView struct {
	Tier            uint64 `json:"tier"`
	RemainingInTier uint64 `json:"remaining_in_tier"`
	NextPrice       uint64 `json:"next_price"`
}

// SwapStats aggregates completed swap activity.
type SwapStats struct {
	TotalSwaps int64  `json:"total_swaps"`
	TotalSold  uint64 `json:"total_sold"`
}

// Publisher receives swap completion events for fan-out. Satisfied by
// feed.Hub.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Builder creates, confirms and expires custodial swaps.
type Builder struct {
	config    Config
	swaps     storage.SwapStore
	ledger    storage.LedgerStore
	rpc       solana.RPCClient
	limiter   *guard.RateLimiter
	publisher Publisher // optional

	custodianKey ed25519.PrivateKey // nil when not configured
	treasury     string             // expected treasury address, base58
	treasuryATA  string             // derived treasury token account

	logger *log.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder. custodianKey may be nil; swap creation then
// fails with a configuration error until a key is provided.
func NewBuilder(config Config, swaps storage.SwapStore, ledger storage.LedgerStore, rpc solana.RPCClient, limiter *guard.RateLimiter, custodianKey ed25519.PrivateKey, treasury string, logger *log.Logger) (*Builder, error) {
	b := &Builder{
		config:       config,
		swaps:        swaps,
		ledger:       ledger,
		rpc:          rpc,
		limiter:      limiter,
		custodianKey: custodianKey,
		treasury:     treasury,
		logger:       logger,
		now:          time.Now,
	}
	if treasury != "" && config.TokenMint != "" {
		ata, err := solana.FindAssociatedTokenAddress(treasury, config.TokenMint)
		if err != nil {
			return nil, fmt.Errorf("derive treasury token account: %w", err)
		}
		b.treasuryATA = ata
	}
	return b, nil
}

// SetPublisher attaches a feed for swap completion events.
func (b *Builder) SetPublisher(p Publisher) {
	b.publisher = p
}

// CreateSwap validates, prices, builds and persists one pending swap, then
// returns the partially signed artifact. The pending row is written before
// the artifact leaves this process.
func (b *Builder) CreateSwap(ctx context.Context, buyerAddress string, unitAmount uint64) (*SwapArtifact, error) {
	if !b.config.Enabled {
		return nil, domain.E(domain.KindValidation, "swaps are disabled")
	}

	// Step 1: input validation and rate limit. An over-limit call is
	// terminal for this request; the client retries after the window.
	if err := solana.ValidateAddress(buyerAddress); err != nil {
		return nil, domain.E(domain.KindValidation, "invalid buyer address: %v", err)
	}
	if unitAmount < b.config.MinPurchase || unitAmount > b.config.MaxPurchase {
		return nil, domain.E(domain.KindValidation,
			"unit amount %d outside [%d, %d]", unitAmount, b.config.MinPurchase, b.config.MaxPurchase)
	}
	if b.limiter != nil && !b.limiter.Allow(buyerAddress) {
		return nil, domain.E(domain.KindRateLimited, "too many swap requests for %s", buyerAddress)
	}

	// Step 2: custodian verification. A missing key and a key that derives
	// to the wrong treasury are distinct failures; both fail closed.
	if err := b.verifyCustodian(); err != nil {
		return nil, err
	}

	// Step 3: price from the authoritative completed total, never a cache.
	unitsSold, err := b.swaps.CompletedUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load completed units: %w", err)
	}
	unitPrice := b.config.Curve.PriceAt(unitsSold)
	quoteCost := b.config.Curve.Quote(unitsSold, unitAmount)
	if quoteCost < b.config.DustThreshold {
		return nil, domain.E(domain.KindValidation,
			"quote of %d lamports is below the %d dust threshold", quoteCost, b.config.DustThreshold)
	}

	// Step 4: treasury inventory check, bounded by the RPC timeout.
	rpcCtx, cancel := context.WithTimeout(ctx, b.config.RPCTimeout)
	defer cancel()

	inventory, err := b.rpc.GetTokenAccountBalance(rpcCtx, b.treasuryATA)
	if err != nil {
		return nil, domain.E(domain.KindExternal, "treasury inventory check: %v", err)
	}
	if inventory < unitAmount {
		return nil, domain.E(domain.KindInsufficientFunds,
			"treasury holds %d units, order needs %d", inventory, unitAmount)
	}

	// Step 5: build the multi-step transaction bound to a fresh blockhash.
	hash, err := b.rpc.GetLatestBlockhash(rpcCtx)
	if err != nil {
		return nil, domain.E(domain.KindExternal, "fetch blockhash: %v", err)
	}

	buyerATA, err := solana.FindAssociatedTokenAddress(buyerAddress, b.config.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("derive buyer token account: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 3)
	exists, err := b.accountExists(rpcCtx, buyerATA)
	if err != nil {
		return nil, domain.E(domain.KindExternal, "check buyer token account: %v", err)
	}
	if !exists {
		instructions = append(instructions,
			solana.NewCreateAssociatedTokenAccountInstruction(buyerAddress, buyerATA, buyerAddress, b.config.TokenMint))
	}
	instructions = append(instructions,
		solana.NewSystemTransferInstruction(buyerAddress, b.treasury, quoteCost),
		solana.NewTokenTransferInstruction(b.treasuryATA, buyerATA, b.treasury, unitAmount),
	)

	tx, err := solana.NewTransaction(buyerAddress, hash.Blockhash, instructions)
	if err != nil {
		return nil, fmt.Errorf("build swap transaction: %w", err)
	}

	// Step 6: sign only the treasury step. The buyer's payment is theirs
	// to authorize.
	if err := tx.Sign(b.custodianKey); err != nil {
		return nil, fmt.Errorf("custodian sign: %w", err)
	}

	// Step 7: persist pending before the artifact leaves this process.
	now := b.now().UnixMilli()
	swap := &domain.Swap{
		ID:           idhash.ComputeSwapID(buyerAddress, unitAmount, hash.Blockhash, now),
		BuyerAddress: buyerAddress,
		UnitAmount:   unitAmount,
		QuoteCost:    quoteCost,
		UnitPrice:    unitPrice,
		Status:       domain.SwapStatusPending,
		Blockhash:    hash.Blockhash,
		CreatedAt:    now,
	}
	if err := b.swaps.Insert(ctx, swap); err != nil {
		return nil, fmt.Errorf("persist pending swap: %w", err)
	}

	b.logger.Printf("created swap %s: %d units at %d lamports for %s",
		swap.ID, unitAmount, unitPrice, buyerAddress)

	return &SwapArtifact{
		SwapID:        swap.ID,
		UnsignedTxB64: tx.Base64(),
		UnitAmount:    unitAmount,
		QuoteCost:     quoteCost,
		UnitPrice:     unitPrice,
		ExpiresAt:     now + b.config.PendingTTL.Milliseconds(),
	}, nil
}

// ConfirmSwap transitions a pending swap to completed exactly once. Repeat
// confirmations of a completed swap succeed without side effects. Confirming
// a failed (expired) swap is a conflict.
func (b *Builder) ConfirmSwap(ctx context.Context, swapID, signature string) (bool, error) {
	if swapID == "" || signature == "" {
		return false, domain.E(domain.KindValidation, "swap id and signature are required")
	}

	transitioned, err := b.swaps.Complete(ctx, swapID, signature, b.now().UnixMilli())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, domain.E(domain.KindNotFound, "swap %s not found", swapID)
		}
		if errors.Is(err, storage.ErrConflict) {
			return false, domain.E(domain.KindConflict, "swap %s already expired", swapID)
		}
		return false, fmt.Errorf("complete swap %s: %w", swapID, err)
	}
	if !transitioned {
		// Already completed: a successful no-op, never double-recorded.
		return false, nil
	}

	// Unified trade-history record, first completion only.
	swap, err := b.swaps.GetByID(ctx, swapID)
	if err != nil {
		return true, fmt.Errorf("reload swap %s: %w", swapID, err)
	}
	entry := &domain.Transaction{
		Hash:      signature,
		From:      b.treasury,
		To:        swap.BuyerAddress,
		Amount:    int64(swap.UnitAmount),
		Token:     domain.TokenNova,
		Status:    domain.TxStatusConfirmed,
		Kind:      domain.TxKindTransfer,
		Memo:      fmt.Sprintf("bridge swap %s", swapID),
		CreatedAt: swap.CompletedAt,
	}
	if err := b.ledger.Apply(ctx, &domain.Mutation{Entries: []*domain.Transaction{entry}}); err != nil {
		// The swap is already completed; the history row is best-effort.
		b.logger.Printf("record swap %s history: %v", swapID, err)
	}

	if b.publisher != nil {
		b.publisher.Publish("swap", map[string]interface{}{
			"swap_id":     swapID,
			"buyer":       swap.BuyerAddress,
			"unit_amount": swap.UnitAmount,
			"quote_cost":  swap.QuoteCost,
			"signature":   signature,
		})
	}

	b.logger.Printf("confirmed swap %s with signature %s", swapID, signature)
	return true, nil
}

// SwapConfig returns the public configuration document.
func (b *Builder) SwapConfig(ctx context.Context) (*SwapConfigDoc, error) {
	unitsSold, err := b.swaps.CompletedUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("load completed units: %w", err)
	}
	count, err := b.swaps.CountCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("count completed swaps: %w", err)
	}

	var supply uint64
	if b.treasuryATA != "" {
		rpcCtx, cancel := context.WithTimeout(ctx, b.config.RPCTimeout)
		supply, err = b.rpc.GetTokenAccountBalance(rpcCtx, b.treasuryATA)
		cancel()
		if err != nil {
			// Documented fallback: report zero supply rather than fail the
			// whole config read on a chain hiccup.
			b.logger.Printf("supply check: %v", err)
			supply = 0
		}
	}

	return &SwapConfigDoc{
		Enabled:         b.config.Enabled && b.custodianKey != nil,
		UnitPrice:       b.config.Curve.PriceAt(unitsSold),
		AvailableSupply: supply,
		MinPurchase:     b.config.MinPurchase,
		MaxPurchase:     b.config.MaxPurchase,
		BondingCurve: BondingCurveView{
			Tier:            b.config.Curve.Tier(unitsSold),
			RemainingInTier: b.config.Curve.RemainingInTier(unitsSold),
			NextPrice:       b.config.Curve.NextPrice(unitsSold),
		},
		Stats: SwapStats{
			TotalSwaps: count,
			TotalSold:  unitsSold,
		},
	}, nil
}

// History returns the buyer's completed swaps, newest first.
func (b *Builder) History(ctx context.Context, buyerAddress string) ([]*domain.Swap, error) {
	if err := solana.ValidateAddress(buyerAddress); err != nil {
		return nil, domain.E(domain.KindValidation, "invalid buyer address: %v", err)
	}
	swaps, err := b.swaps.ListCompletedByBuyer(ctx, buyerAddress)
	if err != nil {
		return nil, fmt.Errorf("list swaps for %s: %w", buyerAddress, err)
	}
	return swaps, nil
}

// ExpireStale marks pending swaps older than the TTL as failed and returns
// how many transitioned. Nothing is soft-reserved at creation, so expiry
// releases nothing; it only closes the confirmation window.
func (b *Builder) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := b.now().Add(-b.config.PendingTTL).UnixMilli()
	n, err := b.swaps.ExpirePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending swaps: %w", err)
	}
	if n > 0 {
		b.logger.Printf("expired %d stale pending swaps", n)
	}
	return n, nil
}

// RunSweeper expires stale pending swaps on an interval until ctx is done.
func (b *Builder) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.ExpireStale(ctx); err != nil {
				b.logger.Printf("sweeper: %v", err)
			}
		}
	}
}

// verifyCustodian checks that a signing key is configured and that it
// derives the expected treasury address.
func (b *Builder) verifyCustodian() error {
	if b.custodianKey == nil || b.treasury == "" {
		return domain.E(domain.KindExternal, "custodian signing key not configured")
	}
	derived := base58.Encode(b.custodianKey.Public().(ed25519.PublicKey))
	if derived != b.treasury {
		return domain.E(domain.KindExternal,
			"custodian key derives %s, expected treasury %s", derived, b.treasury)
	}
	return nil
}

// accountExists reports whether a chain account is present.
func (b *Builder) accountExists(ctx context.Context, pubkey string) (bool, error) {
	info, err := b.rpc.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}
