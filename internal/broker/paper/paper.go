// Package paper is an in-memory broker used in DRY_RUN mode. It keeps cash
// and positions locally, synthesizes quotes with a small random walk around
// seeded prices, and fills orders against its own book so the engine can be
// exercised end to end without touching a real account.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/store"
	"rebalance-bot/internal/types"

	"github.com/google/uuid"
)

const (
	defaultSeedPrice = 100.0
	// halfSpreadBps sets the synthetic bid/ask half-spread.
	halfSpreadBps = 5.0
	// walkBps bounds each random-walk step of the mid price.
	walkBps = 20.0
)

type paperOrder struct {
	id     string
	symbol string
	side   types.Side
	qty    int
	limit  float64 // 0 for market orders
	status types.OrderStatus
}

// Paper implements interfaces.Broker against simulated state.
type Paper struct {
	mu        sync.Mutex
	rng       *rand.Rand
	cash      float64
	prices    map[string]float64
	positions map[string]int
	orders    map[string]*paperOrder
	subs      map[int]func(types.OrderUpdate)
	nextSub   int
}

// New builds a paper broker from the configured starting cash and price
// seeds. Symbols without a seed start at a flat default.
func New(cfg store.PaperConfig) *Paper {
	prices := make(map[string]float64, len(cfg.Prices))
	for symbol, price := range cfg.Prices {
		prices[symbol] = price
	}
	return &Paper{
		rng:       rand.New(rand.NewSource(rand.Int63())),
		cash:      cfg.Cash,
		prices:    prices,
		positions: make(map[string]int),
		orders:    make(map[string]*paperOrder),
		subs:      make(map[int]func(types.OrderUpdate)),
	}
}

// price returns the current mid for a symbol, seeding it on first use and
// nudging it by a bounded random step. Callers hold p.mu.
func (p *Paper) price(symbol string) float64 {
	mid, ok := p.prices[symbol]
	if !ok || mid <= 0 {
		mid = defaultSeedPrice
	}
	step := (p.rng.Float64()*2 - 1) * walkBps / 10000
	mid *= 1 + step
	p.prices[symbol] = mid
	return mid
}

func (p *Paper) quoteLocked(symbol string) types.Quote {
	mid := p.price(symbol)
	half := mid * halfSpreadBps / 10000
	return types.Quote{Bid: mid - half, Ask: mid + half}
}

func (p *Paper) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price(symbol), nil
}

func (p *Paper) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteLocked(symbol), nil
}

func (p *Paper) HeldQuantity(ctx context.Context, symbol string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[symbol], nil
}

func (p *Paper) SubmitLimitOrder(ctx context.Context, symbol string, qty int, side types.Side, limitPrice float64) (string, error) {
	return p.submit(ctx, symbol, qty, side, limitPrice)
}

func (p *Paper) SubmitMarketOrder(ctx context.Context, symbol string, qty int, side types.Side) (string, error) {
	return p.submit(ctx, symbol, qty, side, 0)
}

func (p *Paper) submit(ctx context.Context, symbol string, qty int, side types.Side, limit float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if qty <= 0 {
		return "", fmt.Errorf("%w: quantity %d", types.ErrInvalidOrder, qty)
	}
	quote := p.quoteLocked(symbol)
	if side == types.SideSell {
		if p.positions[symbol] < qty {
			return "", fmt.Errorf("%w: hold %d, asked to sell %d %s",
				types.ErrShortSellDisallowed, p.positions[symbol], qty, symbol)
		}
	} else {
		// Reject against the worst case fill so a limit order never
		// overdraws cash when it executes.
		cost := quote.Ask
		if limit > 0 && limit > cost {
			cost = limit
		}
		if cost*float64(qty) > p.cash {
			return "", fmt.Errorf("%w: need %.2f, have %.2f",
				types.ErrInsufficientFunds, cost*float64(qty), p.cash)
		}
	}

	ord := &paperOrder{
		id:     uuid.NewString(),
		symbol: symbol,
		side:   side,
		qty:    qty,
		limit:  limit,
		status: types.StatusOpen,
	}
	p.orders[ord.id] = ord
	p.tryFillLocked(ctx, ord, quote)
	return ord.id, nil
}

// tryFillLocked fills an open order if it is marketable against the quote.
// Market orders always fill. Callers hold p.mu.
func (p *Paper) tryFillLocked(ctx context.Context, ord *paperOrder, quote types.Quote) {
	if ord.status != types.StatusOpen {
		return
	}

	var fillPrice float64
	switch ord.side {
	case types.SideBuy:
		fillPrice = quote.Ask
		if ord.limit > 0 && ord.limit < quote.Ask {
			return
		}
		if ord.limit > 0 {
			fillPrice = ord.limit
		}
	case types.SideSell:
		fillPrice = quote.Bid
		if ord.limit > 0 && ord.limit > quote.Bid {
			return
		}
		if ord.limit > 0 {
			fillPrice = ord.limit
		}
	}

	if ord.side == types.SideBuy {
		p.cash -= fillPrice * float64(ord.qty)
		p.positions[ord.symbol] += ord.qty
	} else {
		p.cash += fillPrice * float64(ord.qty)
		p.positions[ord.symbol] -= ord.qty
		if p.positions[ord.symbol] == 0 {
			delete(p.positions, ord.symbol)
		}
	}
	ord.status = types.StatusFilled

	logger.Info(ctx, "paper fill",
		"order_id", ord.id,
		"symbol", ord.symbol,
		"side", string(ord.side),
		"qty", ord.qty,
		"price", fillPrice,
		"cash", p.cash)
	p.notifyLocked(types.OrderUpdate{OrderID: ord.id, Status: types.StatusFilled})
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ord, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	if ord.status.Terminal() {
		return fmt.Errorf("order %s already %s", orderID, ord.status)
	}
	ord.status = types.StatusCancelled
	p.notifyLocked(types.OrderUpdate{OrderID: orderID, Status: types.StatusCancelled})
	return nil
}

func (p *Paper) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ord, ok := p.orders[orderID]
	if !ok {
		return types.StatusError, fmt.Errorf("unknown order %s", orderID)
	}
	// Resting limit orders get another chance to cross on every poll as
	// the walk moves the market.
	if ord.status == types.StatusOpen {
		p.tryFillLocked(ctx, ord, p.quoteLocked(ord.symbol))
	}
	return ord.status, nil
}

func (p *Paper) ClosePosition(ctx context.Context, symbol string) (string, error) {
	p.mu.Lock()
	held := p.positions[symbol]
	p.mu.Unlock()
	if held <= 0 {
		return "", fmt.Errorf("%w: %s", types.ErrNoPosition, symbol)
	}
	return p.submit(ctx, symbol, held, types.SideSell, 0)
}

func (p *Paper) Account(ctx context.Context) (types.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value := p.cash
	for symbol, qty := range p.positions {
		value += p.price(symbol) * float64(qty)
	}
	return types.AccountSnapshot{
		Cash:           p.cash,
		PortfolioValue: value,
		BuyingPower:    p.cash,
	}, nil
}

func (p *Paper) Positions(ctx context.Context) (map[string]types.PositionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]types.PositionSnapshot, len(p.positions))
	for symbol, qty := range p.positions {
		out[symbol] = types.PositionSnapshot{
			Symbol:      symbol,
			Qty:         qty,
			MarketValue: p.price(symbol) * float64(qty),
		}
	}
	return out, nil
}

type paperSub struct {
	p  *Paper
	id int
}

func (s *paperSub) Close() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	delete(s.p.subs, s.id)
}

func (p *Paper) SubscribeOrderUpdates(ctx context.Context, fn func(types.OrderUpdate)) (interfaces.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return &paperSub{p: p, id: id}, nil
}

// notifyLocked fans an update out to subscribers. Callers hold p.mu; the
// callbacks run on fresh goroutines so a slow consumer cannot deadlock a
// fill that happens inside a submit call.
func (p *Paper) notifyLocked(update types.OrderUpdate) {
	for _, fn := range p.subs {
		go fn(update)
	}
}

func (p *Paper) IsMarketOpen(ctx context.Context) (bool, error) {
	return true, nil
}
