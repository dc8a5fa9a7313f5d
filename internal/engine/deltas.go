package engine

import (
	"context"
	"math"
	"sort"

	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/types"
)

// buyIntent is a planned buy still expressed in dollars. It becomes a
// PlannedOrder only after cash-feasibility scaling converts it to shares.
type buyIntent struct {
	Symbol string
	Amount float64
	Price  float64
	Reason string
}

// rebalancePlan is the output of one delta computation.
type rebalancePlan struct {
	Sells []types.PlannedOrder
	Buys  []buyIntent
}

func (p rebalancePlan) Empty() bool {
	return len(p.Sells) == 0 && len(p.Buys) == 0
}

// computeDeltas diffs the target allocation against current positions and
// produces the sell and buy plans for one pass. Symbols without a usable
// price are skipped, not failed.
func (o *Orchestrator) computeDeltas(ctx context.Context, targets map[string]float64, account types.AccountSnapshot, positions map[string]types.PositionSnapshot) rebalancePlan {
	plan := rebalancePlan{}
	if account.PortfolioValue <= 0 {
		logger.Warn(ctx, "Portfolio value is zero, nothing to rebalance")
		return plan
	}

	for _, symbol := range unionSymbols(targets, positions) {
		weight := targets[symbol]
		pos, held := positions[symbol]

		price, err := o.brk.CurrentPrice(ctx, symbol)
		if err != nil || price <= 0 {
			logger.Warn(ctx, "Skipping symbol without usable price", "symbol", symbol, "error", err)
			continue
		}

		currentValue := pos.MarketValue
		if currentValue <= 0 && pos.Qty > 0 {
			currentValue = float64(pos.Qty) * price
		}
		targetValue := account.PortfolioValue * weight
		currentWeight := currentValue / account.PortfolioValue
		diffPct := math.Abs(weight-currentWeight) * 100

		// Forced exit: no target weight but a live position.
		if targetValue == 0 && held && pos.Qty > 0 {
			plan.Sells = append(plan.Sells, types.PlannedOrder{
				Symbol: symbol,
				Side:   types.SideSell,
				Qty:    pos.Qty,
				Price:  price,
				Reason: "target weight zero, exiting position",
			})
			continue
		}

		if diffPct < o.cfg.Rebalance.ToleranceThresholdPct {
			continue
		}

		switch {
		case currentValue > targetValue:
			qty := int((currentValue - targetValue) / price)
			if qty > pos.Qty {
				qty = pos.Qty
			}
			if qty <= 0 {
				continue
			}
			plan.Sells = append(plan.Sells, types.PlannedOrder{
				Symbol: symbol,
				Side:   types.SideSell,
				Qty:    qty,
				Price:  price,
				Reason: "overweight, trimming toward target",
			})
		case targetValue > currentValue:
			plan.Buys = append(plan.Buys, buyIntent{
				Symbol: symbol,
				Amount: targetValue - currentValue,
				Price:  price,
				Reason: "underweight, adding toward target",
			})
		}
	}

	return plan
}

// scaleBuysToCash shrinks the buy plan to what projected cash can cover and
// converts dollar amounts to whole shares. projectedCash is current cash plus
// estimated sell proceeds for the pass.
func scaleBuysToCash(ctx context.Context, buys []buyIntent, projectedCash float64) []types.PlannedOrder {
	needed := 0.0
	for _, b := range buys {
		needed += b.Amount
	}

	scale := 1.0
	if needed > projectedCash {
		shortfall := needed - projectedCash
		tolerance := math.Max(needed*0.01, 1.0)
		if shortfall <= tolerance {
			// Trivial gap: shave one percent off everything instead of
			// rescaling exactly.
			scale = 0.99
		} else if projectedCash > 0 {
			scale = projectedCash / needed
		} else {
			scale = 0
		}
		logger.Warn(ctx, "Buy plan exceeds projected cash, scaling down",
			"needed", needed, "projected_cash", projectedCash, "scale", scale)
	}

	orders := make([]types.PlannedOrder, 0, len(buys))
	for _, b := range buys {
		qty := int((b.Amount * scale) / b.Price)
		if qty <= 0 {
			logger.Debug(ctx, "Dropping buy that rounds to zero shares", "symbol", b.Symbol)
			continue
		}
		orders = append(orders, types.PlannedOrder{
			Symbol: b.Symbol,
			Side:   types.SideBuy,
			Qty:    qty,
			Price:  b.Price,
			Reason: b.Reason,
		})
	}
	return orders
}

// estimatedProceeds sums the notional of the planned sells.
func estimatedProceeds(sells []types.PlannedOrder) float64 {
	total := 0.0
	for _, s := range sells {
		total += s.EstimatedValue()
	}
	return total
}

// unionSymbols returns the sorted union of target and position symbols.
// Sorted so pass behavior is deterministic.
func unionSymbols(targets map[string]float64, positions map[string]types.PositionSnapshot) []string {
	set := make(map[string]struct{}, len(targets)+len(positions))
	for s := range targets {
		set[s] = struct{}{}
	}
	for s := range positions {
		set[s] = struct{}{}
	}
	symbols := make([]string, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
