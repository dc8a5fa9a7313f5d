package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rebalance-bot/internal/eod"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		// The run context is cancelled by this point; give the exporter
		// its own window to flush.
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = trace.Shutdown(flushCtx)
	}()

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}

	compressOldLogs(ctx)

	brk, shutdownBroker := initializeBroker(ctx, cfg)
	if shutdownBroker != nil {
		defer shutdownBroker(ctx)
	}

	rebalancer := initializeRebalancer(cfg, brk)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	runOnce := func() {
		executed, err := rebalancer.Rebalance(ctx, cfg.Targets)
		if err != nil {
			logger.ErrorWithErr(ctx, "Rebalance run failed", err,
				"orders_executed", len(executed))
		}
		for _, ord := range executed {
			b, _ := json.Marshal(ord)
			fmt.Println(string(b))
		}
	}

	// One-shot mode when no interval is configured.
	if cfg.IntervalMinutes <= 0 {
		runOnce()
		return
	}

	logger.Info(ctx, "Bot started",
		"mode", cfg.Mode,
		"interval_minutes", cfg.IntervalMinutes,
		"targets", len(cfg.Targets))

	tick := time.NewTicker(time.Duration(cfg.IntervalMinutes) * time.Minute)
	defer tick.Stop()
	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	runOnce()
	for {
		select {
		case <-tick.C:
			runOnce()
		case <-eodTick.C:
			if ok, _ := eod.ShouldRunNow(); ok {
				_, _ = eod.SummarizeToday()
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down...")
			_, _ = eod.SummarizeToday()
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
