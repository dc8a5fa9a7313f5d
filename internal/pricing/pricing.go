// Package pricing computes limit prices for the order executor's retry walk.
//
// The model starts just inside the market on the favorable side and walks
// linearly from the midpoint toward the crossing price as the retry step
// grows, trading price improvement for fill probability.
package pricing

import (
	"math"

	"rebalance-bot/internal/types"
)

// minIncrement is the smallest price increment orders are rounded to.
const minIncrement = 0.01

// LimitPrice returns the limit price for one retry step. It is pure, always
// positive and never panics: degenerate quotes degrade to whichever side is
// still usable, or to the minimum increment when neither is.
//
// step 0 starts just inside the market; step >= maxSteps crosses the spread.
func LimitPrice(side types.Side, bid, ask float64, step int, tickSize float64, maxSteps int) float64 {
	q := types.Quote{Bid: bid, Ask: ask}
	if !q.Valid() {
		p := roundToIncrement(fallbackPrice(side, bid, ask))
		if p < minIncrement {
			// Both sides unusable: floor at one increment so the result
			// stays positive.
			p = minIncrement
		}
		return p
	}

	if step >= maxSteps {
		// Crossing price: guaranteed fill takes priority over improvement.
		if side == types.SideBuy {
			return roundToIncrement(ask)
		}
		return roundToIncrement(bid)
	}

	spread := ask - bid
	if step == 0 {
		inset := math.Min(tickSize, spread*0.1)
		if side == types.SideBuy {
			return roundToIncrement(ask - inset)
		}
		return roundToIncrement(bid + inset)
	}

	progress := float64(step) / float64(maxSteps)
	mid := (bid + ask) / 2
	if side == types.SideBuy {
		return roundToIncrement(mid + (ask-mid)*progress)
	}
	return roundToIncrement(mid - (mid-bid)*progress)
}

// fallbackPrice picks the only usable quote side. For a BUY the ask is
// preferred, for a SELL the bid.
func fallbackPrice(side types.Side, bid, ask float64) float64 {
	if side == types.SideBuy {
		if ask > 0 {
			return ask
		}
		return bid
	}
	if bid > 0 {
		return bid
	}
	return ask
}

func roundToIncrement(price float64) float64 {
	return math.Round(price/minIncrement) * minIncrement
}
