// Package kite implements the Broker interface over the Zerodha Kite Connect
// API. All SDK responses and errors are normalized into the typed model at
// this boundary; nothing Kite-specific leaks into the engine.
package kite

import (
	"context"
	"fmt"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
}

type Kite struct {
	kc       *kiteconnect.Client
	exchange string
	stream   *orderStream
}

var _ interfaces.Broker = (*Kite)(nil)

func New(p Params) *Kite {
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)

	return &Kite{
		kc:       kc,
		exchange: p.Exchange,
		stream:   newOrderStream(p.APIKey, p.AccessToken),
	}
}

// instrument renders a symbol in the EXCHANGE:SYMBOL form the quote
// endpoints expect.
func (k *Kite) instrument(symbol string) string {
	return k.exchange + ":" + symbol
}

func (k *Kite) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	instrument := k.instrument(symbol)
	ltp, err := k.kc.GetLTP(instrument)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrMarketDataUnavailable, symbol, err)
	}
	data, ok := ltp[instrument]
	if !ok || data.LastPrice <= 0 {
		return 0, fmt.Errorf("%w: no last price for %s", types.ErrMarketDataUnavailable, symbol)
	}
	return data.LastPrice, nil
}

func (k *Kite) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	instrument := k.instrument(symbol)
	quotes, err := k.kc.GetQuote(instrument)
	if err != nil {
		return types.Quote{}, fmt.Errorf("%w: %s: %v", types.ErrMarketDataUnavailable, symbol, err)
	}
	data, ok := quotes[instrument]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: no quote for %s", types.ErrMarketDataUnavailable, symbol)
	}

	q := types.Quote{Symbol: symbol}
	if len(data.Depth.Buy) > 0 {
		q.Bid = data.Depth.Buy[0].Price
	}
	if len(data.Depth.Sell) > 0 {
		q.Ask = data.Depth.Sell[0].Price
	}
	return q, nil
}

func (k *Kite) HeldQuantity(ctx context.Context, symbol string) (int, error) {
	holdings, err := k.kc.GetHoldings()
	if err != nil {
		return 0, fmt.Errorf("fetching holdings: %w", err)
	}
	for _, h := range holdings {
		if h.Tradingsymbol == symbol {
			return h.Quantity, nil
		}
	}
	return 0, nil
}

func (k *Kite) SubmitLimitOrder(ctx context.Context, symbol string, qty int, side types.Side, limitPrice float64) (string, error) {
	resp, err := k.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        k.exchange,
		Tradingsymbol:   symbol,
		Product:         kiteconnect.ProductCNC,
		OrderType:       kiteconnect.OrderTypeLimit,
		TransactionType: transactionType(side),
		Quantity:        qty,
		Price:           limitPrice,
		Validity:        kiteconnect.ValidityDay,
	})
	if err != nil {
		return "", classifyError(err)
	}
	return resp.OrderID, nil
}

func (k *Kite) SubmitMarketOrder(ctx context.Context, symbol string, qty int, side types.Side) (string, error) {
	resp, err := k.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        k.exchange,
		Tradingsymbol:   symbol,
		Product:         kiteconnect.ProductCNC,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: transactionType(side),
		Quantity:        qty,
		Validity:        kiteconnect.ValidityDay,
	})
	if err != nil {
		return "", classifyError(err)
	}
	return resp.OrderID, nil
}

func (k *Kite) CancelOrder(ctx context.Context, orderID string) error {
	_, err := k.kc.CancelOrder(kiteconnect.VarietyRegular, orderID, nil)
	if err != nil {
		return fmt.Errorf("cancelling order %s: %w", orderID, err)
	}
	return nil
}

func (k *Kite) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	history, err := k.kc.GetOrderHistory(orderID)
	if err != nil {
		return "", fmt.Errorf("fetching order history %s: %w", orderID, err)
	}
	if len(history) == 0 {
		return "", fmt.Errorf("no history for order %s", orderID)
	}
	return mapStatus(history[len(history)-1].Status), nil
}

// ClosePosition exits the whole position in one market-order submission. Kite
// has no dedicated liquidation endpoint, so selling the full held quantity is
// the atomic equivalent.
func (k *Kite) ClosePosition(ctx context.Context, symbol string) (string, error) {
	held, err := k.HeldQuantity(ctx, symbol)
	if err != nil {
		return "", err
	}
	if held <= 0 {
		return "", fmt.Errorf("%w: %s", types.ErrNoPosition, symbol)
	}
	return k.SubmitMarketOrder(ctx, symbol, held, types.SideSell)
}

func (k *Kite) Account(ctx context.Context) (types.AccountSnapshot, error) {
	margins, err := k.kc.GetUserMargins()
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("%w: %v", types.ErrAccountUnavailable, err)
	}
	holdings, err := k.kc.GetHoldings()
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("%w: holdings: %v", types.ErrAccountUnavailable, err)
	}

	cash := margins.Equity.Available.Cash
	holdingsValue := 0.0
	for _, h := range holdings {
		holdingsValue += float64(h.Quantity) * h.LastPrice
	}

	return types.AccountSnapshot{
		Cash:           cash,
		PortfolioValue: cash + holdingsValue,
		BuyingPower:    margins.Equity.Net,
	}, nil
}

func (k *Kite) Positions(ctx context.Context) (map[string]types.PositionSnapshot, error) {
	holdings, err := k.kc.GetHoldings()
	if err != nil {
		return nil, fmt.Errorf("%w: holdings: %v", types.ErrAccountUnavailable, err)
	}
	positions := make(map[string]types.PositionSnapshot, len(holdings))
	for _, h := range holdings {
		if h.Quantity <= 0 {
			continue
		}
		positions[h.Tradingsymbol] = types.PositionSnapshot{
			Symbol:      h.Tradingsymbol,
			Qty:         h.Quantity,
			MarketValue: float64(h.Quantity) * h.LastPrice,
		}
	}
	return positions, nil
}

func (k *Kite) SubscribeOrderUpdates(ctx context.Context, fn func(types.OrderUpdate)) (interfaces.Subscription, error) {
	return k.stream.subscribe(ctx, fn)
}

// Shutdown tears down the order-update stream if one was opened.
func (k *Kite) Shutdown(ctx context.Context) {
	k.stream.stop(ctx)
}

func transactionType(side types.Side) string {
	if side == types.SideSell {
		return kiteconnect.TransactionTypeSell
	}
	return kiteconnect.TransactionTypeBuy
}
