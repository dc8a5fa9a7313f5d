package engine

import (
	"context"
	"errors"
	"testing"

	"rebalance-bot/internal/store"
	"rebalance-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor(brk *fakeBroker) *orderExecutor {
	exec := newOrderExecutor(brk, store.ExecutorConfig{
		MaxRetries:          2,
		PollTimeoutSeconds:  30,
		PollIntervalSeconds: 0.01,
		SlippageBudgetBps:   5,
	})
	exec.sleep = noSleep
	return exec
}

func TestExecuteRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	exec := testExecutor(newFakeBroker())

	_, err := exec.Execute(ctx, "INFY", 0, types.SideBuy, "test")
	assert.ErrorIs(t, err, types.ErrInvalidOrder)

	_, err = exec.Execute(ctx, "INFY", -5, types.SideSell, "test")
	assert.ErrorIs(t, err, types.ErrInvalidOrder)

	_, err = exec.Execute(ctx, "INFY", 5, types.Side("HOLD"), "test")
	assert.ErrorIs(t, err, types.ErrInvalidOrder)
}

func TestSellWithNoPositionFails(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	exec := testExecutor(brk)

	_, err := exec.Execute(ctx, "INFY", 10, types.SideSell, "trim")
	assert.ErrorIs(t, err, types.ErrNoPosition)
	assert.Empty(t, brk.limitSubmits)
}

func TestOversizedSellCappedAndLiquidated(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.heldFn = func(string) (int, error) { return 10, nil }
	exec := testExecutor(brk)

	// Asking for more than held caps the quantity at the position, which
	// then routes through ClosePosition rather than a limit order that
	// could overshoot.
	order, err := exec.Execute(ctx, "INFY", 100, types.SideSell, "exit")
	require.NoError(t, err)
	assert.Equal(t, 10, order.Qty)
	assert.Equal(t, []string{"INFY"}, brk.closed)
	assert.Empty(t, brk.limitSubmits)
	assert.Empty(t, brk.marketSubmits)
}

func TestNearFullSellLiquidatesPartialSellDoesNot(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.heldFn = func(string) (int, error) { return 1000, nil }
	exec := testExecutor(brk)

	// 999/1000 is within the liquidation band.
	order, err := exec.Execute(ctx, "INFY", 999, types.SideSell, "exit")
	require.NoError(t, err)
	assert.Equal(t, 1000, order.Qty)
	assert.Equal(t, []string{"INFY"}, brk.closed)

	// 900/1000 goes through the limit walk.
	brk2 := newFakeBroker()
	brk2.heldFn = func(string) (int, error) { return 1000, nil }
	exec2 := testExecutor(brk2)

	order, err = exec2.Execute(ctx, "INFY", 900, types.SideSell, "trim")
	require.NoError(t, err)
	assert.Equal(t, 900, order.Qty)
	assert.Empty(t, brk2.closed)
	require.Len(t, brk2.limitSubmits, 1)
	assert.Equal(t, types.SideSell, brk2.limitSubmits[0].Side)
}

func TestBuyFillsOnFirstAttempt(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	exec := testExecutor(brk)

	order, err := exec.Execute(ctx, "INFY", 20, types.SideBuy, "add")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.OrderID)
	assert.Equal(t, 20, order.Qty)
	assert.Equal(t, types.SideBuy, order.Side)
	assert.InDelta(t, 20*order.Price, order.EstimatedValue, 1e-9)
	require.Len(t, brk.limitSubmits, 1)
	// First attempt prices just inside the ask, never through it.
	assert.LessOrEqual(t, brk.limitSubmits[0].Limit, 100.1)
	assert.Greater(t, brk.limitSubmits[0].Limit, 99.9)
}

func TestInsufficientFundsShrinksBuyWithoutBurningRetry(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	calls := 0
	brk.submitLimitFn = func(symbol string, qty int, side types.Side, limit float64) (string, error) {
		calls++
		if calls == 1 {
			return "", types.ErrInsufficientFunds
		}
		return "ord-ok", nil
	}
	exec := testExecutor(brk)

	order, err := exec.Execute(ctx, "INFY", 100, types.SideBuy, "add")
	require.NoError(t, err)
	assert.Equal(t, 90, order.Qty)
	require.Len(t, brk.limitSubmits, 2)
	assert.Equal(t, 100, brk.limitSubmits[0].Qty)
	assert.Equal(t, 90, brk.limitSubmits[1].Qty)
	// Same pricing step on the resubmission, so the reduction did not
	// consume a retry.
	assert.Equal(t, brk.limitSubmits[0].Limit, brk.limitSubmits[1].Limit)
}

func TestRepeatedFundsRejectionExhaustsCapital(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.submitLimitFn = func(string, int, types.Side, float64) (string, error) {
		return "", types.ErrInsufficientFunds
	}
	brk.submitMarketFn = func(string, int, types.Side) (string, error) {
		return "", types.ErrInsufficientFunds
	}
	exec := testExecutor(brk)

	_, err := exec.Execute(ctx, "INFY", 2, types.SideBuy, "add")
	assert.ErrorIs(t, err, types.ErrCapitalExhausted)
}

func TestShortSellRejectionResizesToHeld(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	held := 10
	brk.heldFn = func(string) (int, error) { return held, nil }
	calls := 0
	brk.submitLimitFn = func(symbol string, qty int, side types.Side, limit float64) (string, error) {
		calls++
		if calls == 1 {
			// Holdings shrank between the pre-check and submission.
			held = 6
			return "", types.ErrShortSellDisallowed
		}
		return "ord-ok", nil
	}
	exec := testExecutor(brk)

	order, err := exec.Execute(ctx, "INFY", 9, types.SideSell, "trim")
	require.NoError(t, err)
	// Resized to 95% of the refreshed holding.
	assert.Equal(t, 5, order.Qty)
	require.Len(t, brk.limitSubmits, 2)
	assert.Equal(t, 9, brk.limitSubmits[0].Qty)
	assert.Equal(t, 5, brk.limitSubmits[1].Qty)
}

func TestUnfilledWalkFallsBackToMarket(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.orderStatusFn = func(string) (types.OrderStatus, error) {
		return types.StatusCancelled, nil
	}
	exec := testExecutor(brk)

	order, err := exec.Execute(ctx, "INFY", 10, types.SideBuy, "add")
	require.NoError(t, err)
	// MaxRetries 2 allows attempts 0, 1 and 2 on the limit walk.
	assert.Len(t, brk.limitSubmits, 3)
	require.Len(t, brk.marketSubmits, 1)
	assert.Equal(t, 10, brk.marketSubmits[0].Qty)
	assert.Equal(t, 10, order.Qty)
}

func TestMarketFallbackRetriesOnceDownsized(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.submitLimitFn = func(string, int, types.Side, float64) (string, error) {
		return "", errors.New("exchange reject")
	}
	marketCalls := 0
	brk.submitMarketFn = func(symbol string, qty int, side types.Side) (string, error) {
		marketCalls++
		if marketCalls == 1 {
			return "", types.ErrInsufficientFunds
		}
		return "ord-mkt", nil
	}
	exec := testExecutor(brk)

	order, err := exec.Execute(ctx, "INFY", 100, types.SideBuy, "add")
	require.NoError(t, err)
	assert.Equal(t, 90, order.Qty)
	assert.Equal(t, "ord-mkt", order.OrderID)
	require.Len(t, brk.marketSubmits, 2)
	assert.Equal(t, 100, brk.marketSubmits[0].Qty)
	assert.Equal(t, 90, brk.marketSubmits[1].Qty)

	// Generic submit errors each burned one retry.
	assert.Len(t, brk.limitSubmits, 3)
}

func TestMarketFallbackHardFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.orderStatusFn = func(string) (types.OrderStatus, error) {
		return types.StatusCancelled, nil
	}
	brk.submitMarketFn = func(string, int, types.Side) (string, error) {
		return "", errors.New("exchange halted")
	}
	exec := testExecutor(brk)

	_, err := exec.Execute(ctx, "INFY", 10, types.SideBuy, "add")
	require.Error(t, err)
	assert.Len(t, brk.marketSubmits, 1)
}

func TestMarketDataFailureAborts(t *testing.T) {
	ctx := context.Background()
	brk := newFakeBroker()
	brk.priceFn = func(string) (float64, error) {
		return 0, errors.New("feed down")
	}
	exec := testExecutor(brk)

	_, err := exec.Execute(ctx, "INFY", 10, types.SideBuy, "add")
	assert.ErrorIs(t, err, types.ErrMarketDataUnavailable)
	assert.Empty(t, brk.limitSubmits)
}
