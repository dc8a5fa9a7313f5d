package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker implements the broker surface the watcher touches. Unused
// methods panic so a test exercising the wrong path fails loudly.
type fakeBroker struct {
	mu           sync.Mutex
	statuses     map[string][]types.OrderStatus // successive answers per order
	statusCalls  int
	statusErr    map[string]error
	subscribeErr error
	callbacks    []func(types.OrderUpdate)
	closed       int
}

type fakeSub struct{ b *fakeBroker }

func (s *fakeSub) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.closed++
}

func (b *fakeBroker) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls++
	if err := b.statusErr[orderID]; err != nil {
		return "", err
	}
	seq := b.statuses[orderID]
	if len(seq) == 0 {
		return types.StatusOpen, nil
	}
	status := seq[0]
	if len(seq) > 1 {
		b.statuses[orderID] = seq[1:]
	}
	return status, nil
}

func (b *fakeBroker) SubscribeOrderUpdates(ctx context.Context, fn func(types.OrderUpdate)) (interfaces.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	b.callbacks = append(b.callbacks, fn)
	return &fakeSub{b: b}, nil
}

func (b *fakeBroker) push(u types.OrderUpdate) {
	b.mu.Lock()
	cbs := append([]func(types.OrderUpdate){}, b.callbacks...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(u)
	}
}

func (b *fakeBroker) CurrentPrice(context.Context, string) (float64, error) { panic("unexpected") }
func (b *fakeBroker) Quote(context.Context, string) (types.Quote, error)   { panic("unexpected") }
func (b *fakeBroker) HeldQuantity(context.Context, string) (int, error)    { panic("unexpected") }
func (b *fakeBroker) SubmitLimitOrder(context.Context, string, int, types.Side, float64) (string, error) {
	panic("unexpected")
}
func (b *fakeBroker) SubmitMarketOrder(context.Context, string, int, types.Side) (string, error) {
	panic("unexpected")
}
func (b *fakeBroker) CancelOrder(context.Context, string) error          { panic("unexpected") }
func (b *fakeBroker) ClosePosition(context.Context, string) (string, error) {
	panic("unexpected")
}
func (b *fakeBroker) Account(context.Context) (types.AccountSnapshot, error) { panic("unexpected") }
func (b *fakeBroker) Positions(context.Context) (map[string]types.PositionSnapshot, error) {
	panic("unexpected")
}
func (b *fakeBroker) IsMarketOpen(context.Context) (bool, error) { panic("unexpected") }

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		statuses:  map[string][]types.OrderStatus{},
		statusErr: map[string]error{},
	}
}

func noSleep(w *Watcher) {
	w.sleep = func(ctx context.Context, d time.Duration) error { return nil }
}

func TestEmptyInputCompletesWithoutBrokerCalls(t *testing.T) {
	brk := newFakeBroker()
	w := New(brk, StrategyPoll, 10*time.Millisecond)

	outcome := w.WaitForCompletion(context.Background(), nil, time.Second)

	assert.Equal(t, types.SettlementCompleted, outcome.Status)
	assert.Empty(t, outcome.Orders)
	assert.Zero(t, brk.statusCalls)
}

func TestPollingResolvesAllOrders(t *testing.T) {
	brk := newFakeBroker()
	brk.statuses["o1"] = []types.OrderStatus{types.StatusOpen, types.StatusFilled}
	brk.statuses["o2"] = []types.OrderStatus{types.StatusCancelled}

	w := New(brk, StrategyPoll, time.Millisecond)
	noSleep(w)

	outcome := w.WaitForCompletion(context.Background(), []string{"o1", "o2"}, time.Second)

	require.Equal(t, types.SettlementCompleted, outcome.Status)
	assert.Equal(t, types.StatusFilled, outcome.Orders["o1"])
	assert.Equal(t, types.StatusCancelled, outcome.Orders["o2"])
	assert.Len(t, outcome.Orders, 2)
}

func TestPollingMarksUnresolvedAsTimeout(t *testing.T) {
	brk := newFakeBroker()
	brk.statuses["stuck"] = []types.OrderStatus{types.StatusOpen}
	brk.statuses["done"] = []types.OrderStatus{types.StatusFilled}

	w := New(brk, StrategyPoll, time.Millisecond)
	noSleep(w)

	outcome := w.WaitForCompletion(context.Background(), []string{"stuck", "done"}, 20*time.Millisecond)

	assert.Equal(t, types.SettlementTimeout, outcome.Status)
	assert.Equal(t, types.StatusTimeout, outcome.Orders["stuck"])
	assert.Equal(t, types.StatusFilled, outcome.Orders["done"])
	assert.Len(t, outcome.Orders, 2)
}

func TestPollingMarksFailingStatusQueryAsError(t *testing.T) {
	brk := newFakeBroker()
	brk.statusErr["bad"] = errors.New("boom")

	w := New(brk, StrategyPoll, time.Millisecond)
	noSleep(w)

	outcome := w.WaitForCompletion(context.Background(), []string{"bad"}, time.Second)

	// The failing order is terminal, not retried forever.
	assert.Equal(t, types.SettlementCompleted, outcome.Status)
	assert.Equal(t, types.StatusError, outcome.Orders["bad"])
}

func TestStreamedResolvesFromUpdates(t *testing.T) {
	brk := newFakeBroker()
	brk.statuses["o1"] = []types.OrderStatus{types.StatusOpen}

	w := New(brk, StrategyStream, time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		brk.push(types.OrderUpdate{OrderID: "o1", Status: types.StatusOpen})
		brk.push(types.OrderUpdate{OrderID: "unrelated", Status: types.StatusFilled})
		brk.push(types.OrderUpdate{OrderID: "o1", Status: types.StatusFilled})
	}()

	outcome := w.WaitForCompletion(context.Background(), []string{"o1"}, 2*time.Second)

	assert.Equal(t, types.SettlementCompleted, outcome.Status)
	assert.Equal(t, types.StatusFilled, outcome.Orders["o1"])
	assert.Equal(t, 1, brk.closed, "subscription must be released")
}

func TestStreamedCatchesAlreadySettledOrders(t *testing.T) {
	brk := newFakeBroker()
	brk.statuses["early"] = []types.OrderStatus{types.StatusFilled}

	w := New(brk, StrategyStream, time.Millisecond)

	outcome := w.WaitForCompletion(context.Background(), []string{"early"}, time.Second)

	assert.Equal(t, types.SettlementCompleted, outcome.Status)
	assert.Equal(t, types.StatusFilled, outcome.Orders["early"])
}

func TestStreamedMarksPendingAtTimeout(t *testing.T) {
	brk := newFakeBroker()
	brk.statuses["never"] = []types.OrderStatus{types.StatusOpen}

	w := New(brk, StrategyStream, time.Millisecond)

	outcome := w.WaitForCompletion(context.Background(), []string{"never"}, 20*time.Millisecond)

	assert.Equal(t, types.SettlementTimeout, outcome.Status)
	assert.Equal(t, types.StatusTimeout, outcome.Orders["never"])
	assert.Equal(t, 1, brk.closed)
}

func TestAutoFallsBackToPollingWhenStreamUnavailable(t *testing.T) {
	brk := newFakeBroker()
	brk.subscribeErr = errors.New("no websocket credentials")
	brk.statuses["o1"] = []types.OrderStatus{types.StatusFilled}

	w := New(brk, StrategyAuto, time.Millisecond)
	noSleep(w)

	outcome := w.WaitForCompletion(context.Background(), []string{"o1"}, time.Second)

	assert.Equal(t, types.SettlementCompleted, outcome.Status)
	assert.Equal(t, types.StatusFilled, outcome.Orders["o1"])
}

func TestStreamStrategyErrorsWhenStreamUnavailable(t *testing.T) {
	brk := newFakeBroker()
	brk.subscribeErr = errors.New("no websocket credentials")

	w := New(brk, StrategyStream, time.Millisecond)

	outcome := w.WaitForCompletion(context.Background(), []string{"o1"}, time.Second)

	assert.Equal(t, types.SettlementError, outcome.Status)
	assert.Equal(t, types.StatusError, outcome.Orders["o1"])
}

func TestOutcomeKeySetEqualsInput(t *testing.T) {
	brk := newFakeBroker()
	ids := []string{"a", "b", "c"}
	brk.statuses["a"] = []types.OrderStatus{types.StatusFilled}
	brk.statuses["b"] = []types.OrderStatus{types.StatusRejected}
	// "c" never resolves.

	w := New(brk, StrategyPoll, time.Millisecond)
	noSleep(w)

	outcome := w.WaitForCompletion(context.Background(), ids, 20*time.Millisecond)

	require.Len(t, outcome.Orders, len(ids))
	for _, id := range ids {
		assert.Contains(t, outcome.Orders, id)
	}
}
