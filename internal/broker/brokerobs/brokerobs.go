package brokerobs

import (
	"context"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/trace"
	"rebalance-bot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CurrentPrice")
	defer span.End()

	price, err := ob.broker.CurrentPrice(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Price fetched", "symbol", symbol, "price", price)
	return price, nil
}

func (ob *observableBroker) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Quote")
	defer span.End()

	quote, err := ob.broker.Quote(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "symbol", symbol)
		return types.Quote{}, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched", "symbol", symbol, "bid", quote.Bid, "ask", quote.Ask)
	return quote, nil
}

func (ob *observableBroker) HeldQuantity(ctx context.Context, symbol string) (int, error) {
	ctx, span := trace.StartSpan(ctx, "broker.HeldQuantity")
	defer span.End()

	qty, err := ob.broker.HeldQuantity(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch held quantity", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Held quantity fetched", "symbol", symbol, "qty", qty)
	return qty, nil
}

func (ob *observableBroker) SubmitLimitOrder(ctx context.Context, symbol string, qty int, side types.Side, limitPrice float64) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SubmitLimitOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing limit order",
		"symbol", symbol,
		"side", side,
		"qty", qty,
		"limit_price", limitPrice,
	)

	orderID, err := ob.broker.SubmitLimitOrder(ctx, symbol, qty, side, limitPrice)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place limit order", err,
			"symbol", symbol,
			"side", side,
			"qty", qty,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Limit order placed", "symbol", symbol, "order_id", orderID)
	return orderID, nil
}

func (ob *observableBroker) SubmitMarketOrder(ctx context.Context, symbol string, qty int, side types.Side) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SubmitMarketOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing market order",
		"symbol", symbol,
		"side", side,
		"qty", qty,
	)

	orderID, err := ob.broker.SubmitMarketOrder(ctx, symbol, qty, side)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place market order", err,
			"symbol", symbol,
			"side", side,
			"qty", qty,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Market order placed", "symbol", symbol, "order_id", orderID)
	return orderID, nil
}

func (ob *observableBroker) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	err := ob.broker.CancelOrder(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return err
	}

	logger.InfoSkip(ctx, 1, "Order cancelled", "order_id", orderID)
	return nil
}

func (ob *observableBroker) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OrderStatus")
	defer span.End()

	status, err := ob.broker.OrderStatus(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order status", err, "order_id", orderID)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "Order status fetched", "order_id", orderID, "status", status)
	return status, nil
}

func (ob *observableBroker) ClosePosition(ctx context.Context, symbol string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.ClosePosition")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing position", "symbol", symbol)

	orderID, err := ob.broker.ClosePosition(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close position", err, "symbol", symbol)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Position closed", "symbol", symbol, "order_id", orderID)
	return orderID, nil
}

func (ob *observableBroker) Account(ctx context.Context) (types.AccountSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Account")
	defer span.End()

	account, err := ob.broker.Account(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account", err)
		return types.AccountSnapshot{}, err
	}

	logger.DebugSkip(ctx, 1, "Account fetched",
		"cash", account.Cash,
		"portfolio_value", account.PortfolioValue,
		"buying_power", account.BuyingPower,
	)
	return account, nil
}

func (ob *observableBroker) Positions(ctx context.Context) (map[string]types.PositionSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Positions")
	defer span.End()

	positions, err := ob.broker.Positions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Positions fetched", "count", len(positions))
	return positions, nil
}

func (ob *observableBroker) SubscribeOrderUpdates(ctx context.Context, fn func(types.OrderUpdate)) (interfaces.Subscription, error) {
	ctx, span := trace.StartSpan(ctx, "broker.SubscribeOrderUpdates")
	defer span.End()

	sub, err := ob.broker.SubscribeOrderUpdates(ctx, fn)
	if err != nil {
		logger.WarnSkip(ctx, 1, "Order update subscription unavailable", "error", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Subscribed to order updates")
	return sub, nil
}

func (ob *observableBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "broker.IsMarketOpen")
	defer span.End()

	open, err := ob.broker.IsMarketOpen(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to check market hours", err)
		return false, err
	}

	logger.DebugSkip(ctx, 1, "Market hours checked", "open", open)
	return open, nil
}
