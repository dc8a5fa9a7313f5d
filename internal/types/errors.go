package types

import "errors"

// Sentinel errors the engine branches on. Broker adapters wrap their native
// failures with these before anything reaches the engine, so the core never
// inspects broker error strings itself.
var (
	// ErrInsufficientFunds covers the broker's funds/margin rejection class.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrShortSellDisallowed is a SELL rejected because it would exceed the
	// held quantity.
	ErrShortSellDisallowed = errors.New("short selling not allowed")

	// ErrCapitalExhausted is surfaced once every quantity reduction for a
	// funds-class rejection has been used up.
	ErrCapitalExhausted = errors.New("capital reductions exhausted")

	// ErrMarketDataUnavailable means no usable price or quote for a symbol.
	ErrMarketDataUnavailable = errors.New("market data unavailable")

	// ErrAccountUnavailable means account state could not be fetched. This is
	// fatal for a rebalance invocation.
	ErrAccountUnavailable = errors.New("account unavailable")

	// ErrInvalidOrder marks requests rejected before any broker call, such as
	// a non-positive quantity.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrNoPosition is a SELL for a symbol with nothing held.
	ErrNoPosition = errors.New("no position held")
)
