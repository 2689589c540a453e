// Package main runs the token exchange engine: the ledger and market trade
// API, the custodial swap bridge, the WebSocket market feed and the
// ClickHouse tick mirror, in one binary.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mr-tron/base58"

	"token-exchange-engine/internal/bridge"
	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/exchange"
	"token-exchange-engine/internal/feed"
	"token-exchange-engine/internal/guard"
	"token-exchange-engine/internal/httpapi"
	"token-exchange-engine/internal/ledger"
	"token-exchange-engine/internal/marketdata"
	"token-exchange-engine/internal/observability"
	"token-exchange-engine/internal/pricing"
	"token-exchange-engine/internal/solana"
	"token-exchange-engine/internal/storage"
	chstore "token-exchange-engine/internal/storage/clickhouse"
	"token-exchange-engine/internal/storage/memory"
	"token-exchange-engine/internal/storage/migrations"
	pgstore "token-exchange-engine/internal/storage/postgres"
)

// allStores holds every storage implementation the engine needs.
type allStores struct {
	ledgerStore  storage.LedgerStore
	tradeStore   storage.TradeStore
	walletStore  storage.WalletStore
	swapStore    storage.SwapStore
	restrictions storage.RestrictionStore
	priceStore   storage.PriceStore
	tickStore    storage.TickStore
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	treasury := flag.String("treasury-address", os.Getenv("TREASURY_ADDRESS"), "Expected treasury public key (base58)")
	tokenMint := flag.String("token-mint", os.Getenv("TOKEN_MINT"), "Bridged token mint address")
	custodianKeyB64 := flag.String("custodian-key", os.Getenv("CUSTODIAN_KEY"), "Custodian ed25519 seed (base64); empty disables swap creation")
	rateLimit := flag.Int("swap-rate-limit", 5, "Max swap creations per buyer per window")
	rateWindow := flag.Duration("swap-rate-window", time.Minute, "Swap rate limit window")
	sweepInterval := flag.Duration("sweep-interval", time.Minute, "Pending swap expiry sweep interval")
	priceOverrides := flag.String("price-overrides", os.Getenv("PRICE_OVERRIDES"), "Operator reference prices, e.g. NVA=0.02,COIN=0.15")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	custodianKey, err := parseCustodianKey(*custodianKeyB64)
	if err != nil {
		logger.Fatalf("Invalid custodian key: %v", err)
	}
	if custodianKey != nil && *treasury == "" {
		// Derive the treasury from the key when not pinned explicitly.
		*treasury = base58.Encode(custodianKey.Public().(ed25519.PublicKey))
		logger.Printf("Treasury derived from custodian key: %s", *treasury)
	}

	metrics := observability.NewMetrics("token_exchange")
	logger.Printf("Metrics registered")

	// Components
	pricer := pricing.NewPricer(stores.priceStore, logger)
	if err := applyPriceOverrides(ctx, pricer, *priceOverrides); err != nil {
		logger.Fatalf("Invalid price overrides: %v", err)
	}
	policy := guard.NewPolicy(stores.restrictions, guard.DefaultBuyOnly())
	limiter := guard.NewRateLimiter(*rateLimit, *rateWindow)

	hub := feed.NewHub(nil, logger)
	defer hub.Close()

	recorder := marketdata.NewRecorder(stores.tickStore, nil, logger)
	defer recorder.Close()

	ledgerSvc := ledger.NewService(stores.ledgerStore, stores.walletStore, policy, logger)
	executor := exchange.NewExecutor(exchange.DefaultConfig(), stores.ledgerStore, pricer, policy, hub, recorder, logger)

	bridgeConfig := bridge.DefaultConfig()
	bridgeConfig.TokenMint = *tokenMint
	bridgeConfig.Enabled = custodianKey != nil && *tokenMint != ""

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	builder, err := bridge.NewBuilder(bridgeConfig, stores.swapStore, stores.ledgerStore, rpc, limiter, custodianKey, *treasury, logger)
	if err != nil {
		logger.Fatalf("Failed to create swap builder: %v", err)
	}
	builder.SetPublisher(hub)

	// Background loops
	go builder.RunSweeper(ctx, *sweepInterval)
	go sampleFeedClients(ctx, hub, metrics)
	go pruneRateLimiter(ctx, limiter)

	api := httpapi.NewServer(ledgerSvc, executor, builder, stores.tradeStore, recorder, hub, metrics, logger)
	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
	}()

	logger.Printf("Listening on %s (swap bridge enabled: %v)", *listenAddr, bridgeConfig.Enabled)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores, running migrations for the
// persistent backends.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*allStores, func(), error) {
	if useMemory {
		ledgerStore := memory.NewLedgerStore()
		return &allStores{
			ledgerStore:  ledgerStore,
			tradeStore:   ledgerStore,
			walletStore:  memory.NewWalletStore(),
			swapStore:    memory.NewSwapStore(),
			restrictions: memory.NewRestrictionStore(nil),
			priceStore:   memory.NewPriceStore(),
			tickStore:    memory.NewTickStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}
	logger.Printf("PostgreSQL migrations applied")

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}
	logger.Printf("ClickHouse migrations applied")

	ledgerStore := pgstore.NewLedgerStore(pool)
	stores := &allStores{
		ledgerStore:  ledgerStore,
		tradeStore:   ledgerStore,
		walletStore:  pgstore.NewWalletStore(pool),
		swapStore:    pgstore.NewSwapStore(pool),
		restrictions: pgstore.NewRestrictionStore(pool),
		priceStore:   pgstore.NewPriceStore(pool),
		tickStore:    chstore.NewTickStore(chConn),
	}
	cleanup := func() {
		pool.Close()
		chConn.Close()
	}
	return stores, cleanup, nil
}

// parseCustodianKey decodes a base64 ed25519 seed or full private key.
func parseCustodianKey(encoded string) (ed25519.PrivateKey, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("key is %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// applyPriceOverrides writes operator reference prices as settings points.
// Format: comma-separated TOKEN=PRICE entries.
func applyPriceOverrides(ctx context.Context, pricer *pricing.Pricer, spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	for _, entry := range strings.Split(spec, ",") {
		token, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return fmt.Errorf("malformed entry %q, want TOKEN=PRICE", entry)
		}
		price, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parse price in %q: %w", entry, err)
		}
		if err := pricer.SetPrice(ctx, domain.Token(strings.ToUpper(token)), price); err != nil {
			return err
		}
	}
	return nil
}

// sampleFeedClients mirrors the hub's subscriber count into the gauge.
func sampleFeedClients(ctx context.Context, hub *feed.Hub, metrics *observability.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.FeedClients.Set(float64(hub.ClientCount()))
		}
	}
}

// pruneRateLimiter drops expired rate limit windows periodically.
func pruneRateLimiter(ctx context.Context, limiter *guard.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
		}
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
