package interfaces

import (
	"context"

	"rebalance-bot/internal/types"
)

// Rebalancer converges the live portfolio toward a target weight allocation.
type Rebalancer interface {
	// Rebalance plans and executes the orders needed to move the account
	// toward targets (symbol -> weight in [0,1]). It returns every order the
	// broker accepted, including those from an invocation that later failed.
	Rebalance(ctx context.Context, targets map[string]float64) ([]types.ExecutedOrder, error)
}
