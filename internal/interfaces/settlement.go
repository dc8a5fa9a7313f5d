package interfaces

import (
	"context"
	"time"

	"rebalance-bot/internal/types"
)

// SettlementWatcher blocks until a set of orders reaches a terminal state or
// the wait times out. An empty id set completes immediately without touching
// the broker.
type SettlementWatcher interface {
	WaitForCompletion(ctx context.Context, orderIDs []string, maxWait time.Duration) types.SettlementOutcome
}
