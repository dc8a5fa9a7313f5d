package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/store"
	"rebalance-bot/internal/tradelog"
	"rebalance-bot/internal/types"

	"github.com/google/uuid"
)

// minBuyCash is the cash floor under which a downsized buy is skipped
// instead of submitted.
const minBuyCash = 1.0

// Orchestrator turns a target allocation into broker orders: compute deltas,
// sell, wait for settlement, buy, and repeat for a bounded number of passes
// to correct drift from partial fills and price movement.
//
// One Rebalance invocation owns the cash and position bookkeeping it does;
// concurrent invocations against the same account must be serialized by the
// caller.
type Orchestrator struct {
	brk     interfaces.Broker
	exec    interfaces.OrderExecutor
	watcher interfaces.SettlementWatcher
	cfg     *store.Config

	sleep func(ctx context.Context, d time.Duration) error
}

var _ interfaces.Rebalancer = (*Orchestrator)(nil)

func newOrchestrator(brk interfaces.Broker, exec interfaces.OrderExecutor, watcher interfaces.SettlementWatcher, cfg *store.Config) *Orchestrator {
	return &Orchestrator{
		brk:     brk,
		exec:    exec,
		watcher: watcher,
		cfg:     cfg,
		sleep:   sleepCtx,
	}
}

// Rebalance drives the portfolio toward targets. It returns every order the
// broker accepted; when account state becomes unavailable mid-flight the
// orders executed so far are returned alongside the error.
func (o *Orchestrator) Rebalance(ctx context.Context, targets map[string]float64) ([]types.ExecutedOrder, error) {
	if err := validateTargets(ctx, targets); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger.Info(ctx, "Rebalance started",
		"run_id", runID, "symbols", len(targets), "max_passes", o.cfg.Rebalance.MaxPasses)

	var executed []types.ExecutedOrder
	for pass := 1; pass <= o.cfg.Rebalance.MaxPasses; pass++ {
		passOrders, err := o.runPass(ctx, runID, pass, targets)
		executed = append(executed, passOrders...)
		if err != nil {
			logger.ErrorWithErr(ctx, "Rebalance aborted", err, "run_id", runID, "pass", pass)
			return executed, err
		}
		if len(passOrders) == 0 {
			logger.Info(ctx, "Portfolio aligned, no further action", "run_id", runID, "pass", pass)
			break
		}
		if pass < o.cfg.Rebalance.MaxPasses {
			// Brief pause so fills and cash settle before re-planning.
			if err := o.sleep(ctx, o.cfg.Rebalance.PassPause()); err != nil {
				return executed, err
			}
		}
	}

	logger.Info(ctx, "Rebalance finished", "run_id", runID, "orders_executed", len(executed))
	return executed, nil
}

// runPass executes one compute-sell-settle-buy cycle. The returned error is
// non-nil only for invocation-fatal conditions (account unavailable);
// per-symbol failures are logged and skipped.
func (o *Orchestrator) runPass(ctx context.Context, runID string, pass int, targets map[string]float64) ([]types.ExecutedOrder, error) {
	account, err := o.brk.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAccountUnavailable, err)
	}
	positions, err := o.brk.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: positions: %v", types.ErrAccountUnavailable, err)
	}

	plan := o.computeDeltas(ctx, targets, account, positions)
	if plan.Empty() {
		return nil, nil
	}
	logger.Info(ctx, "Pass plan computed",
		"run_id", runID, "pass", pass,
		"sells", len(plan.Sells), "buys", len(plan.Buys),
		"cash", account.Cash, "portfolio_value", account.PortfolioValue)

	var executed []types.ExecutedOrder

	// Sell phase. All sells complete before any buy so freed capital is
	// confirmed, never assumed.
	sellIDs := make([]string, 0, len(plan.Sells))
	sellProceeds := 0.0
	for _, sell := range plan.Sells {
		order, err := o.exec.Execute(ctx, sell.Symbol, sell.Qty, types.SideSell, sell.Reason)
		if err != nil {
			logger.ErrorWithErr(ctx, "Sell failed, continuing with remaining symbols", err,
				"run_id", runID, "symbol", sell.Symbol, "qty", sell.Qty)
			continue
		}
		executed = append(executed, order)
		sellIDs = append(sellIDs, order.OrderID)
		sellProceeds += order.EstimatedValue
		o.journal(ctx, runID, order)
	}

	availableCash, err := o.settleAndRefresh(ctx, runID, sellIDs, sellProceeds)
	if err != nil {
		return executed, err
	}

	// Buy phase, bounded by the cash actually available.
	buys := scaleBuysToCash(ctx, plan.Buys, account.Cash+estimatedProceeds(plan.Sells))
	for _, buy := range buys {
		qty := buy.Qty
		cost := buy.EstimatedValue()
		if cost > availableCash {
			qty = int(availableCash / buy.Price)
			if qty <= 0 || availableCash <= minBuyCash {
				logger.Info(ctx, "Skipping buy, insufficient remaining cash",
					"run_id", runID, "symbol", buy.Symbol, "available_cash", availableCash)
				continue
			}
			logger.Info(ctx, "Downsizing buy to remaining cash",
				"run_id", runID, "symbol", buy.Symbol, "planned_qty", buy.Qty, "adjusted_qty", qty)
			cost = float64(qty) * buy.Price
		}

		order, err := o.exec.Execute(ctx, buy.Symbol, qty, types.SideBuy, buy.Reason)
		if err != nil {
			logger.ErrorWithErr(ctx, "Buy failed, continuing with remaining symbols", err,
				"run_id", runID, "symbol", buy.Symbol, "qty", qty)
			continue
		}
		executed = append(executed, order)
		availableCash -= cost
		o.journal(ctx, runID, order)
	}

	_ = tradelog.AppendPass(tradelog.PassEntry{
		RunID:          runID,
		Pass:           pass,
		OrdersExecuted: len(executed),
		SellsPlanned:   len(plan.Sells),
		BuysPlanned:    len(buys),
	})
	return executed, nil
}

// settleAndRefresh waits for the sell orders to settle, then returns the
// authoritative cash available for buying. When the market is closed and
// off-hours trading is permitted, the broker does not reflect pending-order
// cash, so the wait is skipped and fresh cash plus estimated proceeds is used
// as a projection.
func (o *Orchestrator) settleAndRefresh(ctx context.Context, runID string, sellIDs []string, sellProceeds float64) (float64, error) {
	marketOpen := true
	if open, err := o.brk.IsMarketOpen(ctx); err == nil {
		marketOpen = open
	}

	if !marketOpen && o.cfg.Rebalance.AllowOutsideMarketHours {
		account, err := o.brk.Account(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", types.ErrAccountUnavailable, err)
		}
		projected := account.Cash + sellProceeds
		logger.Info(ctx, "Market closed, projecting cash from pending sells",
			"run_id", runID, "cash", account.Cash, "sell_proceeds", sellProceeds, "projected", projected)
		return projected, nil
	}

	if len(sellIDs) > 0 {
		outcome := o.watcher.WaitForCompletion(ctx, sellIDs, o.cfg.Rebalance.SettlementWait())
		if outcome.Status != types.SettlementCompleted {
			// Availability over consistency: proceed with whatever cash the
			// broker reports rather than deadlocking on stragglers.
			logger.Warn(ctx, "Settlement wait incomplete, proceeding with refreshed cash",
				"run_id", runID, "status", outcome.Status, "orders", len(outcome.Orders))
		}
	}

	account, err := o.brk.Account(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrAccountUnavailable, err)
	}
	return account.Cash, nil
}

func (o *Orchestrator) journal(ctx context.Context, runID string, order types.ExecutedOrder) {
	logger.Trade(ctx, order.Symbol, string(order.Side), order.Qty, order.Price, order.OrderID, "run_id", runID)
	_ = tradelog.Append(tradelog.Entry{
		Symbol:         order.Symbol,
		Side:           string(order.Side),
		Qty:            order.Qty,
		Price:          order.Price,
		OrderID:        order.OrderID,
		Reason:         order.Reason,
		EstimatedValue: order.EstimatedValue,
		RunID:          runID,
	})
}

// validateTargets rejects malformed weights before any broker call. A weight
// sum off 1.0 within tolerance is only warned about.
func validateTargets(ctx context.Context, targets map[string]float64) error {
	if len(targets) == 0 {
		return fmt.Errorf("%w: no target weights", types.ErrInvalidOrder)
	}
	sum := 0.0
	for symbol, weight := range targets {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("%w: weight for %s out of [0,1]: %f", types.ErrInvalidOrder, symbol, weight)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > store.WeightSumTolerance {
		logger.Warn(ctx, "Target weights do not sum to 1.0", "sum", sum)
	}
	return nil
}
