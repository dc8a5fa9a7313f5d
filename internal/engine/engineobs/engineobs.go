package engineobs

import (
	"context"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/trace"
	"rebalance-bot/internal/types"
)

type observableRebalancer struct {
	rebalancer interfaces.Rebalancer
}

var _ interfaces.Rebalancer = (*observableRebalancer)(nil)

func Wrap(r interfaces.Rebalancer) interfaces.Rebalancer {
	return &observableRebalancer{
		rebalancer: r,
	}
}

func (or *observableRebalancer) Rebalance(ctx context.Context, targets map[string]float64) ([]types.ExecutedOrder, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Rebalance")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting rebalance cycle",
		"symbols", len(targets),
	)

	orders, err := or.rebalancer.Rebalance(ctx, targets)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Rebalance cycle failed", err,
			"orders_executed", len(orders),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return orders, err
	}

	logger.InfoSkip(ctx, 1, "Rebalance cycle completed",
		"orders_executed", len(orders),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return orders, nil
}
