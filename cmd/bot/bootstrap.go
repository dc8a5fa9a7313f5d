package main

import (
	"context"
	"fmt"
	"os"

	"rebalance-bot/internal/broker/brokerobs"
	"rebalance-bot/internal/broker/kite"
	"rebalance-bot/internal/broker/paper"
	"rebalance-bot/internal/engine"
	"rebalance-bot/internal/engine/engineobs"
	"rebalance-bot/internal/eod"
	"rebalance-bot/internal/eod/eodobs"
	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/settlement"
	"rebalance-bot/internal/store"
	"rebalance-bot/internal/trace"
	"rebalance-bot/internal/tradelog"

	"github.com/joho/godotenv"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	// Initialize EOD summarizer with observability
	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer()))

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("REBALANCE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	if sum, off := cfg.WeightSumOffTolerance(); off {
		logger.Warn(ctx, "Configured target weights do not sum to 1.0", "sum", sum)
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeBroker initializes and returns the broker instance with
// observability. In DRY_RUN mode all orders run against the in-memory
// simulator; LIVE mode talks to Zerodha Kite.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, func(context.Context)) {
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
		return brokerobs.Wrap(paper.New(cfg.Paper)), nil
	}

	brk := kite.New(kite.Params{
		APIKey:      os.Getenv("KITE_API_KEY"),
		AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		Exchange:    cfg.Exchange,
	})
	logger.Info(ctx, "Using LIVE Zerodha Kite broker", "exchange", cfg.Exchange)

	// Wrap with observability middleware
	return brokerobs.Wrap(brk), func(ctx context.Context) { brk.Shutdown(ctx) }
}

// initializeRebalancer wires the settlement watcher and engine with
// observability
func initializeRebalancer(cfg *store.Config, brk interfaces.Broker) interfaces.Rebalancer {
	watcher := settlement.New(brk, cfg.Settlement.Strategy, cfg.Settlement.PollInterval())
	eng := engine.New(cfg, brk, watcher)

	// Wrap with observability middleware
	return engineobs.Wrap(eng)
}
