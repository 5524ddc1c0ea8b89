package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/tari-cpu/tpool/internal/api"
	"github.com/tari-cpu/tpool/internal/config"
	"github.com/tari-cpu/tpool/internal/events"
	"github.com/tari-cpu/tpool/internal/explorer"
	"github.com/tari-cpu/tpool/internal/ledger"
	"github.com/tari-cpu/tpool/internal/payout"
	"github.com/tari-cpu/tpool/internal/settle"
	"github.com/tari-cpu/tpool/internal/shares"
	"github.com/tari-cpu/tpool/internal/utils"
	"github.com/tari-cpu/tpool/internal/validate"
	"github.com/tari-cpu/tpool/internal/wallet"
)

func main() {
	logger := utils.GetLogger()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Durable ledger: connects, sets pool limits, migrates the schema
	store, err := ledger.Open(cfg.DSN())
	if err != nil {
		logger.Fatalf("Failed to open ledger store: %v", err)
	}

	// Transient share counters
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	counter := shares.NewCounter(rdb, cfg.CoinNames(), cfg.ShareTTL())

	engine := settle.NewEngine(store, counter, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wallets := make(map[string]wallet.Wallet)
	inspectors := make(map[string]api.WalletInspector)
	validators := make(map[string]api.BlockChecker)
	for _, coin := range cfg.Coins {
		if coin.WalletRPCURL != "" {
			w := wallet.NewMoneroRPC(coin.WalletRPCURL, coin.WalletRPCUser, coin.WalletRPCPassword)
			wallets[coin.Name] = w
			inspectors[coin.Name] = w
		}
		if coin.RequiresConfirmation && coin.ExplorerURL != "" {
			v := validate.NewValidator(store, explorer.NewClient(coin.ExplorerURL), coin.Name, logger)
			validators[coin.Name] = v
			go v.Run(ctx, cfg.ValidateInterval())
		}
	}

	dispatcher := payout.NewDispatcher(store, wallets, cfg, logger)
	go dispatcher.Run(ctx, cfg.PayoutInterval())

	// Block-found events drive settlement
	listener, err := events.NewListener(cfg.EventsEndpoint, engine)
	if err != nil {
		logger.Fatalf("Failed to connect to block event feed: %v", err)
	}
	go func() {
		logger.Println("Connected to block event feed, waiting for blocks...")
		listener.ReadEvents(ctx, logger)
	}()

	// Query/admin API for the front-end and CLI layers
	go func() {
		server := api.NewServer(store, counter, dispatcher, validators, inspectors, cfg)
		logger.Printf("Starting API server on %s", cfg.ListenAddr)
		if err := server.Router().Run(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to run API server: %v", err)
		}
	}()

	// Block until a signal is received
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Println("Shutting down...")
	cancel()
	listener.Stats().PrintCounts(logger)

	if err := store.Close(); err != nil {
		logger.Printf("Failed to close ledger store: %v", err)
	}
	rdb.Close()
}
