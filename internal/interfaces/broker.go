package interfaces

import (
	"context"

	"rebalance-bot/internal/types"
)

// Subscription is a live order-update stream registration. Close releases it
// and is safe to call from any goroutine, including concurrently with the
// stream delivering updates.
type Subscription interface {
	Close()
}

// Broker defines the interface for interacting with a stock broker. All
// returned values are normalized into the typed model; errors for the
// recoverable rejection classes wrap the sentinels in the types package.
type Broker interface {
	// CurrentPrice returns the last traded price for a symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// Quote returns the best bid/ask for a symbol.
	Quote(ctx context.Context, symbol string) (types.Quote, error)

	// HeldQuantity returns the number of shares currently held.
	HeldQuantity(ctx context.Context, symbol string) (int, error)

	// SubmitLimitOrder places a day limit order and returns the order id.
	SubmitLimitOrder(ctx context.Context, symbol string, qty int, side types.Side, limitPrice float64) (string, error)

	// SubmitMarketOrder places a market order and returns the order id.
	SubmitMarketOrder(ctx context.Context, symbol string, qty int, side types.Side) (string, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) error

	// OrderStatus returns the normalized status of an order.
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)

	// ClosePosition exits the entire held position for a symbol in one
	// submission and returns the order id.
	ClosePosition(ctx context.Context, symbol string) (string, error)

	// Account returns cash, buying power and total portfolio value.
	Account(ctx context.Context) (types.AccountSnapshot, error)

	// Positions returns all held positions keyed by symbol.
	Positions(ctx context.Context) (map[string]types.PositionSnapshot, error)

	// SubscribeOrderUpdates registers a callback on the broker's order-update
	// feed. The callback runs on the stream's goroutine.
	SubscribeOrderUpdates(ctx context.Context, fn func(types.OrderUpdate)) (Subscription, error)

	// IsMarketOpen reports whether the exchange is currently in session.
	IsMarketOpen(ctx context.Context) (bool, error)
}
