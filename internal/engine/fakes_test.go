package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/types"
)

// fakeBroker is a hook-driven broker double. Each hook has a sane default so
// tests only script the behavior they care about. Calls are recorded for
// ordering assertions.
type fakeBroker struct {
	mu sync.Mutex

	priceFn         func(symbol string) (float64, error)
	quoteFn         func(symbol string) (types.Quote, error)
	heldFn          func(symbol string) (int, error)
	submitLimitFn   func(symbol string, qty int, side types.Side, limit float64) (string, error)
	submitMarketFn  func(symbol string, qty int, side types.Side) (string, error)
	cancelFn        func(orderID string) error
	orderStatusFn   func(orderID string) (types.OrderStatus, error)
	closePositionFn func(symbol string) (string, error)
	accountFn       func() (types.AccountSnapshot, error)
	positionsFn     func() (map[string]types.PositionSnapshot, error)
	marketOpen      bool
	marketOpenErr   error

	limitSubmits  []submittedOrder
	marketSubmits []submittedOrder
	cancels       []string
	closed        []string
	nextOrder     int
}

type submittedOrder struct {
	Symbol string
	Qty    int
	Side   types.Side
	Limit  float64
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{marketOpen: true}
}

func (f *fakeBroker) orderID() string {
	f.nextOrder++
	return fmt.Sprintf("ord-%d", f.nextOrder)
}

func (f *fakeBroker) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.priceFn != nil {
		return f.priceFn(symbol)
	}
	return 100, nil
}

func (f *fakeBroker) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteFn != nil {
		return f.quoteFn(symbol)
	}
	return types.Quote{Symbol: symbol, Bid: 99.9, Ask: 100.1}, nil
}

func (f *fakeBroker) HeldQuantity(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heldFn != nil {
		return f.heldFn(symbol)
	}
	return 0, nil
}

func (f *fakeBroker) SubmitLimitOrder(ctx context.Context, symbol string, qty int, side types.Side, limit float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitSubmits = append(f.limitSubmits, submittedOrder{symbol, qty, side, limit})
	if f.submitLimitFn != nil {
		return f.submitLimitFn(symbol, qty, side, limit)
	}
	return f.orderID(), nil
}

func (f *fakeBroker) SubmitMarketOrder(ctx context.Context, symbol string, qty int, side types.Side) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketSubmits = append(f.marketSubmits, submittedOrder{Symbol: symbol, Qty: qty, Side: side})
	if f.submitMarketFn != nil {
		return f.submitMarketFn(symbol, qty, side)
	}
	return f.orderID(), nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	if f.cancelFn != nil {
		return f.cancelFn(orderID)
	}
	return nil
}

func (f *fakeBroker) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderStatusFn != nil {
		return f.orderStatusFn(orderID)
	}
	return types.StatusFilled, nil
}

func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, symbol)
	if f.closePositionFn != nil {
		return f.closePositionFn(symbol)
	}
	return f.orderID(), nil
}

func (f *fakeBroker) Account(ctx context.Context) (types.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountFn != nil {
		return f.accountFn()
	}
	return types.AccountSnapshot{}, nil
}

func (f *fakeBroker) Positions(ctx context.Context) (map[string]types.PositionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsFn != nil {
		return f.positionsFn()
	}
	return map[string]types.PositionSnapshot{}, nil
}

type noopSub struct{}

func (noopSub) Close() {}

func (f *fakeBroker) SubscribeOrderUpdates(ctx context.Context, fn func(types.OrderUpdate)) (interfaces.Subscription, error) {
	return noopSub{}, nil
}

func (f *fakeBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marketOpen, f.marketOpenErr
}

// fakeExecutor records Execute calls and fills them immediately at a fixed
// per-symbol price.
type fakeExecutor struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]error
	calls  []execCall
	next   int
}

type execCall struct {
	Symbol string
	Qty    int
	Side   types.Side
}

func newFakeExecutor(prices map[string]float64) *fakeExecutor {
	return &fakeExecutor{prices: prices, fail: map[string]error{}}
}

func (f *fakeExecutor) Execute(ctx context.Context, symbol string, qty int, side types.Side, reason string) (types.ExecutedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{symbol, qty, side})
	if err := f.fail[symbol]; err != nil {
		return types.ExecutedOrder{}, err
	}
	price := f.prices[symbol]
	f.next++
	return types.ExecutedOrder{
		Symbol:         symbol,
		Side:           side,
		Qty:            qty,
		OrderID:        fmt.Sprintf("exec-%d", f.next),
		Price:          price,
		EstimatedValue: float64(qty) * price,
		Reason:         reason,
	}, nil
}

// fakeWatcher records what it was asked to wait on and reports everything
// settled.
type fakeWatcher struct {
	mu     sync.Mutex
	waits  [][]string
	status types.SettlementStatus
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{status: types.SettlementCompleted}
}

func (f *fakeWatcher) WaitForCompletion(ctx context.Context, orderIDs []string, maxWait time.Duration) types.SettlementOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := append([]string(nil), orderIDs...)
	f.waits = append(f.waits, ids)
	orders := make(map[string]types.OrderStatus, len(ids))
	for _, id := range ids {
		orders[id] = types.StatusFilled
	}
	return types.SettlementOutcome{Orders: orders, Status: f.status}
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }
