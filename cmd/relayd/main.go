// Package main provides the unified relay server: market registry, vault and
// fee-flow auction engines behind a JSON HTTP API, plus health/status/metrics.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"relay-market-core/internal/bank"
	"relay-market-core/internal/observability"
	"relay-market-core/internal/relay"
	"relay-market-core/internal/rewarder"
	"relay-market-core/internal/storage/memory"
	"relay-market-core/internal/storage/migrations"
	pgstore "relay-market-core/internal/storage/postgres"
)

// Server holds all components of the relay service.
type Server struct {
	registry    *relay.Registry
	bank        bank.Bank
	treasuryCut decimal.Decimal
	logger      *log.Logger

	mu      sync.Mutex
	started time.Time
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen", envOr("RELAY_LISTEN", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	treasuryCut := flag.String("treasury-cut", envOr("RELAY_TREASURY_CUT", "0.1"), "Fraction of proceeds retained by the treasury")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[relayd] ", log.LstdFlags|log.Lshortfile)
	slogger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	cut, err := decimal.NewFromString(*treasuryCut)
	if err != nil || cut.Sign() < 0 || cut.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		logger.Fatalf("--treasury-cut must be a fraction in [0, 1): %q", *treasuryCut)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// The asset ledger is process-local; callers seed balances through the
	// faucet endpoint before exercising the markets.
	ledger := bank.NewMemory()

	registry := relay.New(relay.Options{
		Bank:   ledger,
		Stores: stores,
		Logger: slogger,
	})

	server := &Server{
		registry:    registry,
		bank:        ledger,
		treasuryCut: cut,
		logger:      logger,
		started:     time.Now(),
	}

	// Restore persisted markets and re-wire their collaborators.
	if err := registry.Load(ctx); err != nil {
		logger.Fatalf("Failed to load registry: %v", err)
	}
	for _, m := range registry.Markets() {
		if err := server.wireMarket(m.MarketID, m.TokenAsset()); err != nil {
			logger.Fatalf("Failed to wire market %s: %v", m.MarketID, err)
		}
	}

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
		cancel()
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN string, useMemory bool) (relay.Stores, func(), error) {
	if useMemory {
		stores := relay.Stores{
			Markets:     memory.NewMarketStore(),
			Epochs:      memory.NewEpochStore(),
			Settlements: memory.NewSettlementStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return relay.Stores{}, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return relay.Stores{}, nil, err
	}

	stores := relay.Stores{
		Markets:     pgstore.NewMarketStore(pool),
		Epochs:      pgstore.NewEpochStore(pool),
		Settlements: pgstore.NewSettlementStore(pool),
	}
	return stores, pool.Close, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /markets", s.handleCreateMarket)
	mux.HandleFunc("GET /markets", s.handleListMarkets)
	mux.HandleFunc("GET /markets/{id}", s.handleGetMarket)
	mux.HandleFunc("POST /markets/{id}/wire", s.handleWireMarket)
	mux.HandleFunc("POST /markets/{id}/mint", s.handleMint)
	mux.HandleFunc("POST /markets/{id}/redeem", s.handleRedeem)
	mux.HandleFunc("POST /markets/{id}/buy", s.handleBuy)
	mux.HandleFunc("GET /markets/{id}/settlements", s.handleSettlements)
	mux.HandleFunc("POST /markets/{id}/stake", s.handleStake)
	mux.HandleFunc("POST /markets/{id}/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /markets/{id}/claim", s.handleClaim)

	mux.HandleFunc("POST /accounts/fund", s.handleFund)
	mux.HandleFunc("GET /accounts/{account}/balances", s.handleBalances)

	return mux
}

// wireMarket attaches a fresh router and reward ledger to a market.
func (s *Server) wireMarket(marketID, stakingAsset string) error {
	rw := rewarder.NewLedger(marketID, stakingAsset, s.bank)
	router := newRouter(s.bank, rw, s.treasuryCut)
	return s.registry.Wire(marketID, router, rw)
}

// envOr returns the env var value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
