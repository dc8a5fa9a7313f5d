package kite

import (
	"context"
	"errors"
	"sync"
	"time"

	"rebalance-bot/internal/interfaces"
	"rebalance-bot/internal/logger"
	"rebalance-bot/internal/types"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"
)

// orderStream owns one shared websocket ticker and fans order updates out to
// every registered subscriber. The ticker is opened lazily on the first
// subscription and reused afterwards.
type orderStream struct {
	apiKey      string
	accessToken string

	mu      sync.Mutex
	ticker  *kiteticker.Ticker
	started bool
	subs    map[int]func(types.OrderUpdate)
	nextID  int
}

func newOrderStream(apiKey, accessToken string) *orderStream {
	return &orderStream{
		apiKey:      apiKey,
		accessToken: accessToken,
		subs:        make(map[int]func(types.OrderUpdate)),
	}
}

func (s *orderStream) subscribe(ctx context.Context, fn func(types.OrderUpdate)) (interfaces.Subscription, error) {
	if s.apiKey == "" || s.accessToken == "" {
		return nil, errors.New("order update stream requires API credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.ticker = kiteticker.New(s.apiKey, s.accessToken)
		s.setupEventHandlers()
		go s.ticker.Serve()
		s.started = true
	}

	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	return &streamSub{stream: s, id: id}, nil
}

func (s *orderStream) stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && s.ticker != nil {
		s.ticker.Stop()
		s.started = false
	}
}

// setupEventHandlers configures the websocket callbacks. Caller holds s.mu.
func (s *orderStream) setupEventHandlers() {
	s.ticker.OnConnect(s.onConnect)
	s.ticker.OnError(s.onError)
	s.ticker.OnClose(s.onClose)
	s.ticker.OnReconnect(s.onReconnect)
	s.ticker.OnNoReconnect(s.onNoReconnect)
	s.ticker.OnOrderUpdate(s.onOrderUpdate)
}

func (s *orderStream) onConnect() {
	logger.Info(context.Background(), "Order update stream connected")
}

func (s *orderStream) onError(err error) {
	logger.ErrorWithErr(context.Background(), "Order update stream error", err)
}

func (s *orderStream) onClose(code int, reason string) {
	logger.Warn(context.Background(), "Order update stream closed",
		"code", code,
		"reason", reason,
	)
}

func (s *orderStream) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "Order update stream reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (s *orderStream) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "Order update stream reconnection failed - giving up",
		"attempts", attempt,
	)
}

func (s *orderStream) onOrderUpdate(order kiteconnect.Order) {
	update := types.OrderUpdate{
		OrderID: order.OrderID,
		Status:  mapStatus(order.Status),
	}

	s.mu.Lock()
	callbacks := make([]func(types.OrderUpdate), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(update)
	}
}

// streamSub is one registration on the shared stream. Close only
// unregisters; the underlying ticker stays up for reuse.
type streamSub struct {
	stream *orderStream
	id     int
}

var _ interfaces.Subscription = (*streamSub)(nil)

func (ss *streamSub) Close() {
	ss.stream.mu.Lock()
	defer ss.stream.mu.Unlock()
	delete(ss.stream.subs, ss.id)
}
