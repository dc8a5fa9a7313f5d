package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/pricing"
	"rebalance-bot/internal/store"
	"rebalance-bot/internal/types"
)

const (
	// liquidationThreshold: a sell for at least this fraction of the held
	// quantity goes through the broker's close-position primitive instead of
	// the limit-order walk, so it can never overshoot the position.
	liquidationThreshold = 0.999

	// pollTimeoutShrink is taken off the fill-poll timeout per retry step.
	pollTimeoutShrink = 5 * time.Second
	// minPollTimeout is the floor the fill-poll timeout never shrinks below.
	minPollTimeout = 10 * time.Second

	minTickSize = 0.01
)

// orderExecutor places one order at a time, walking the limit price toward
// the market across retries and falling back to a market order once the
// retries are exhausted.
type orderExecutor struct {
	brk   interfaces.Broker
	cfg   store.ExecutorConfig
	sleep func(ctx context.Context, d time.Duration) error
}

var _ interfaces.OrderExecutor = (*orderExecutor)(nil)

func newOrderExecutor(brk interfaces.Broker, cfg store.ExecutorConfig) *orderExecutor {
	return &orderExecutor{
		brk:   brk,
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

// Execute places an order for qty shares of symbol. Sells are capped at the
// held quantity at submission time and near-full sells are routed through
// ClosePosition. On success the broker order id and the estimated notional
// are returned; failure is terminal for this symbol only.
func (oe *orderExecutor) Execute(ctx context.Context, symbol string, qty int, side types.Side, reason string) (types.ExecutedOrder, error) {
	if qty <= 0 {
		return types.ExecutedOrder{}, fmt.Errorf("%w: quantity must be positive, got %d", types.ErrInvalidOrder, qty)
	}
	if side != types.SideBuy && side != types.SideSell {
		return types.ExecutedOrder{}, fmt.Errorf("%w: unknown side %q", types.ErrInvalidOrder, side)
	}

	if side == types.SideSell {
		held, err := oe.brk.HeldQuantity(ctx, symbol)
		if err != nil {
			return types.ExecutedOrder{}, fmt.Errorf("querying held quantity for %s: %w", symbol, err)
		}
		if held <= 0 {
			return types.ExecutedOrder{}, fmt.Errorf("%w: %s", types.ErrNoPosition, symbol)
		}
		if qty > held {
			logger.Warn(ctx, "Sell quantity capped at held position",
				"symbol", symbol, "requested", qty, "held", held)
			qty = held
		}
		if float64(qty) >= float64(held)*liquidationThreshold {
			return oe.liquidate(ctx, symbol, held, reason)
		}
	}

	lastPrice := 0.0
	attempt := 0
	for attempt <= oe.cfg.MaxRetries {
		price, quote, err := oe.fetchMarketData(ctx, symbol)
		if err != nil {
			return types.ExecutedOrder{}, err
		}
		lastPrice = price

		tickSize := price * oe.cfg.SlippageBudgetBps / 10000
		if tickSize < minTickSize {
			tickSize = minTickSize
		}
		limitPrice := pricing.LimitPrice(side, quote.Bid, quote.Ask, attempt, tickSize, oe.cfg.MaxRetries)
		if limitPrice <= 0 {
			return types.ExecutedOrder{}, fmt.Errorf("%w: no usable quote for %s", types.ErrMarketDataUnavailable, symbol)
		}

		logger.Debug(ctx, "Submitting limit order",
			"symbol", symbol, "side", side, "qty", qty,
			"limit_price", limitPrice, "attempt", attempt)

		orderID, err := oe.brk.SubmitLimitOrder(ctx, symbol, qty, side, limitPrice)
		if err != nil {
			newQty, advance, abortErr := oe.recoverSubmitError(ctx, symbol, qty, side, err)
			if abortErr != nil {
				return types.ExecutedOrder{}, abortErr
			}
			qty = newQty
			if advance {
				attempt++
			}
			continue
		}

		filled, err := oe.pollForFill(ctx, orderID, attempt)
		if err != nil {
			return types.ExecutedOrder{}, err
		}
		if filled {
			return oe.executed(symbol, side, qty, orderID, limitPrice, reason), nil
		}

		// Not filled within the window: cancel best-effort and reprice.
		if err := oe.brk.CancelOrder(ctx, orderID); err != nil {
			logger.Warn(ctx, "Cancel after poll timeout failed",
				"symbol", symbol, "order_id", orderID, "error", err)
		}
		attempt++
	}

	return oe.marketFallback(ctx, symbol, qty, side, lastPrice, reason)
}

// fetchMarketData returns the last trade price and the current quote. A
// failed quote lookup degrades to a price-only quote, which the pricing
// model treats as single-sided.
func (oe *orderExecutor) fetchMarketData(ctx context.Context, symbol string) (float64, types.Quote, error) {
	price, err := oe.brk.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, types.Quote{}, fmt.Errorf("%w: %s: %v", types.ErrMarketDataUnavailable, symbol, err)
	}
	if price <= 0 {
		return 0, types.Quote{}, fmt.Errorf("%w: non-positive price for %s", types.ErrMarketDataUnavailable, symbol)
	}

	quote, err := oe.brk.Quote(ctx, symbol)
	if err != nil {
		logger.Debug(ctx, "Quote lookup failed, using last trade price", "symbol", symbol, "error", err)
		quote = types.Quote{Symbol: symbol, Bid: price, Ask: price}
	}
	return price, quote, nil
}

// recoverSubmitError handles a rejected submission. Broker capital errors
// shrink the quantity and retry the same pricing step; anything else burns a
// retry. A reduction that fails to shrink the quantity also burns a retry so
// the loop always makes progress.
func (oe *orderExecutor) recoverSubmitError(ctx context.Context, symbol string, qty int, side types.Side, submitErr error) (newQty int, advance bool, abort error) {
	switch {
	case errors.Is(submitErr, types.ErrShortSellDisallowed) && side == types.SideSell:
		held, err := oe.brk.HeldQuantity(ctx, symbol)
		if err != nil || held <= 0 {
			return 0, false, fmt.Errorf("%w: %s rejected as short sale and holdings unavailable", types.ErrCapitalExhausted, symbol)
		}
		reduced := int(float64(held) * 0.95)
		logger.Warn(ctx, "Short sale rejected, resizing to held position",
			"symbol", symbol, "requested", qty, "held", held, "resized", reduced)
		if reduced <= 0 {
			return 0, false, fmt.Errorf("%w: %s position too small to sell", types.ErrCapitalExhausted, symbol)
		}
		if reduced >= qty {
			return reduced, true, nil
		}
		return reduced, false, nil

	case errors.Is(submitErr, types.ErrInsufficientFunds):
		var reduced int
		if side == types.SideBuy {
			reduced = int(float64(qty) * 0.9)
		} else {
			held, err := oe.brk.HeldQuantity(ctx, symbol)
			if err != nil {
				return 0, false, fmt.Errorf("querying held quantity for %s: %w", symbol, err)
			}
			reduced = int(float64(held) * 0.9)
		}
		logger.Warn(ctx, "Insufficient funds, reducing quantity",
			"symbol", symbol, "side", side, "requested", qty, "resized", reduced)
		if reduced <= 0 {
			return 0, false, fmt.Errorf("%w: %s quantity reduced to zero", types.ErrCapitalExhausted, symbol)
		}
		if reduced >= qty {
			return reduced, true, nil
		}
		return reduced, false, nil

	default:
		logger.ErrorWithErr(ctx, "Order submission failed", submitErr,
			"symbol", symbol, "side", side, "qty", qty)
		return qty, true, nil
	}
}

// pollForFill polls order status until filled, terminal-unfilled, or the
// attempt's shrinking timeout elapses. Transient status errors are logged
// and polling continues.
func (oe *orderExecutor) pollForFill(ctx context.Context, orderID string, attempt int) (bool, error) {
	timeout := oe.cfg.PollTimeout() - time.Duration(attempt)*pollTimeoutShrink
	if timeout < minPollTimeout {
		timeout = minPollTimeout
	}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		status, err := oe.brk.OrderStatus(ctx, orderID)
		if err != nil {
			logger.Warn(ctx, "Order status poll failed", "order_id", orderID, "error", err)
		} else {
			switch status {
			case types.StatusFilled:
				return true, nil
			case types.StatusCancelled, types.StatusRejected, types.StatusExpired:
				return false, nil
			}
		}

		wait := oe.cfg.PollInterval()
		if until := time.Until(deadline); until < wait {
			wait = until
		}
		if wait <= 0 {
			break
		}
		if err := oe.sleep(ctx, wait); err != nil {
			return false, err
		}
	}
	return false, nil
}

// marketFallback submits a market order after the limit walk failed to fill.
// One further insufficient-funds rejection downsizes to 90% and retries once;
// any failure after that is terminal for this symbol.
func (oe *orderExecutor) marketFallback(ctx context.Context, symbol string, qty int, side types.Side, lastPrice float64, reason string) (types.ExecutedOrder, error) {
	logger.Info(ctx, "Limit retries exhausted, submitting market order",
		"symbol", symbol, "side", side, "qty", qty)

	orderID, err := oe.brk.SubmitMarketOrder(ctx, symbol, qty, side)
	if err == nil {
		return oe.executed(symbol, side, qty, orderID, lastPrice, reason), nil
	}
	if !errors.Is(err, types.ErrInsufficientFunds) {
		return types.ExecutedOrder{}, fmt.Errorf("market fallback for %s failed: %w", symbol, err)
	}

	reduced := int(float64(qty) * 0.9)
	if reduced <= 0 {
		return types.ExecutedOrder{}, fmt.Errorf("%w: %s market fallback quantity reduced to zero", types.ErrCapitalExhausted, symbol)
	}
	logger.Warn(ctx, "Market fallback rejected for funds, retrying downsized",
		"symbol", symbol, "qty", qty, "resized", reduced)

	orderID, err = oe.brk.SubmitMarketOrder(ctx, symbol, reduced, side)
	if err != nil {
		return types.ExecutedOrder{}, fmt.Errorf("market fallback for %s failed after downsizing: %w", symbol, err)
	}
	return oe.executed(symbol, side, reduced, orderID, lastPrice, reason), nil
}

// liquidate exits the full position through the broker's atomic
// close-position primitive.
func (oe *orderExecutor) liquidate(ctx context.Context, symbol string, held int, reason string) (types.ExecutedOrder, error) {
	price, err := oe.brk.CurrentPrice(ctx, symbol)
	if err != nil {
		// The estimate is best-effort; liquidation proceeds regardless.
		price = 0
	}

	orderID, err := oe.brk.ClosePosition(ctx, symbol)
	if err != nil {
		return types.ExecutedOrder{}, fmt.Errorf("closing position %s: %w", symbol, err)
	}
	logger.Info(ctx, "Position closed via liquidation primitive",
		"symbol", symbol, "qty", held, "order_id", orderID)
	return oe.executed(symbol, types.SideSell, held, orderID, price, reason), nil
}

func (oe *orderExecutor) executed(symbol string, side types.Side, qty int, orderID string, price float64, reason string) types.ExecutedOrder {
	return types.ExecutedOrder{
		Symbol:         symbol,
		Side:           side,
		Qty:            qty,
		OrderID:        orderID,
		Price:          price,
		EstimatedValue: float64(qty) * price,
		Reason:         reason,
	}
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
