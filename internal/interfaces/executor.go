package interfaces

import (
	"context"

	"rebalance-bot/internal/types"
)

// OrderExecutor places a single order, walking the limit price toward the
// market across retries and falling back to a market order when retries are
// exhausted.
type OrderExecutor interface {
	Execute(ctx context.Context, symbol string, qty int, side types.Side, reason string) (types.ExecutedOrder, error)
}
