package settlement

import (
	"context"
	"time"

	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/types"
)

// updateBuffer bounds the channel between the stream callback and the
// waiting goroutine. The callback never blocks the stream: overflow updates
// are dropped and the pending orders are resolved at timeout instead.
const updateBuffer = 256

// waitStreamed resolves orders from the broker's order-update feed. A
// synchronous status check per order runs first so orders that settled
// before monitoring began are not waited on. The returned error is non-nil
// only when the subscription could not be established.
func (w *Watcher) waitStreamed(ctx context.Context, orderIDs []string, maxWait time.Duration) (types.SettlementOutcome, error) {
	updates := make(chan types.OrderUpdate, updateBuffer)

	sub, err := w.brk.SubscribeOrderUpdates(ctx, func(u types.OrderUpdate) {
		select {
		case updates <- u:
		default:
			logger.Warn(context.Background(), "Order update dropped, buffer full", "order_id", u.OrderID)
		}
	})
	if err != nil {
		return types.SettlementOutcome{}, err
	}
	defer sub.Close()

	resolved := make(map[string]types.OrderStatus, len(orderIDs))
	pending := make(map[string]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		pending[id] = struct{}{}
	}

	// Catch orders that already settled before the subscription was live.
	for _, id := range orderIDs {
		status, err := w.brk.OrderStatus(ctx, id)
		if err != nil {
			logger.Warn(ctx, "Initial status check failed", "order_id", id, "error", err)
			continue
		}
		if status.Terminal() {
			resolved[id] = status
			delete(pending, id)
		}
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case u := <-updates:
			if _, ok := pending[u.OrderID]; !ok {
				continue
			}
			if !u.Status.Terminal() {
				continue
			}
			resolved[u.OrderID] = u.Status
			delete(pending, u.OrderID)
		case <-timer.C:
			for id := range pending {
				resolved[id] = types.StatusTimeout
			}
			return outcomeFor(resolved), nil
		case <-ctx.Done():
			for id := range pending {
				resolved[id] = types.StatusTimeout
			}
			return outcomeFor(resolved), nil
		}
	}

	return outcomeFor(resolved), nil
}
