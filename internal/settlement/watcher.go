// Package settlement waits for broker orders to reach a terminal state.
//
// Two strategies are available: polling the broker's order status endpoint,
// and listening on its order-update stream. Strategy "auto" prefers the
// stream and falls back to polling whenever the stream cannot start.
package settlement

import (
	"context"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/types"
)

const (
	// StrategyAuto prefers streaming with a polling fallback.
	StrategyAuto = "auto"
	// StrategyPoll always polls order status.
	StrategyPoll = "poll"
	// StrategyStream always uses the order-update stream.
	StrategyStream = "stream"

	defaultPollInterval = 2 * time.Second
)

type Watcher struct {
	brk          interfaces.Broker
	strategy     string
	pollInterval time.Duration

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ interfaces.SettlementWatcher = (*Watcher)(nil)

func New(brk interfaces.Broker, strategy string, pollInterval time.Duration) *Watcher {
	if strategy == "" {
		strategy = StrategyAuto
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Watcher{
		brk:          brk,
		strategy:     strategy,
		pollInterval: pollInterval,
		sleep:        sleepCtx,
	}
}

// WaitForCompletion blocks until every order id reaches a terminal state or
// maxWait elapses. The returned outcome covers exactly the input id set;
// orders still pending at the deadline are marked with StatusTimeout.
func (w *Watcher) WaitForCompletion(ctx context.Context, orderIDs []string, maxWait time.Duration) types.SettlementOutcome {
	if len(orderIDs) == 0 {
		return types.SettlementOutcome{
			Orders: map[string]types.OrderStatus{},
			Status: types.SettlementCompleted,
		}
	}

	switch w.strategy {
	case StrategyPoll:
		return w.waitPolling(ctx, orderIDs, maxWait)
	case StrategyStream:
		outcome, err := w.waitStreamed(ctx, orderIDs, maxWait)
		if err == nil {
			return outcome
		}
		logger.ErrorWithErr(ctx, "Order update stream unavailable", err, "order_count", len(orderIDs))
		return types.SettlementOutcome{
			Orders: markAll(orderIDs, types.StatusError),
			Status: types.SettlementError,
		}
	default:
		outcome, err := w.waitStreamed(ctx, orderIDs, maxWait)
		if err == nil {
			return outcome
		}
		logger.Warn(ctx, "Falling back to status polling", "error", err, "order_count", len(orderIDs))
		return w.waitPolling(ctx, orderIDs, maxWait)
	}
}

// waitPolling queries each pending order on a bounded interval. An order
// whose status query keeps failing is marked StatusError rather than being
// retried forever.
func (w *Watcher) waitPolling(ctx context.Context, orderIDs []string, maxWait time.Duration) types.SettlementOutcome {
	deadline := time.Now().Add(maxWait)
	resolved := make(map[string]types.OrderStatus, len(orderIDs))
	pending := make([]string, len(orderIDs))
	copy(pending, orderIDs)

	for len(pending) > 0 && time.Now().Before(deadline) {
		remaining := pending[:0]
		for _, id := range pending {
			status, err := w.brk.OrderStatus(ctx, id)
			if err != nil {
				logger.Warn(ctx, "Order status query failed", "order_id", id, "error", err)
				resolved[id] = types.StatusError
				continue
			}
			if status.Terminal() {
				resolved[id] = status
				continue
			}
			remaining = append(remaining, id)
		}
		pending = remaining
		if len(pending) == 0 {
			break
		}

		wait := w.pollInterval
		if until := time.Until(deadline); until < wait {
			wait = until
		}
		if wait <= 0 {
			break
		}
		if err := w.sleep(ctx, wait); err != nil {
			break
		}
	}

	for _, id := range pending {
		resolved[id] = types.StatusTimeout
	}
	return outcomeFor(resolved)
}

// outcomeFor derives the overall status from the per-order map.
func outcomeFor(orders map[string]types.OrderStatus) types.SettlementOutcome {
	status := types.SettlementCompleted
	for _, s := range orders {
		if s == types.StatusTimeout {
			status = types.SettlementTimeout
			break
		}
	}
	return types.SettlementOutcome{Orders: orders, Status: status}
}

func markAll(orderIDs []string, status types.OrderStatus) map[string]types.OrderStatus {
	m := make(map[string]types.OrderStatus, len(orderIDs))
	for _, id := range orderIDs {
		m[id] = status
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
