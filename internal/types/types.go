package types

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus is the broker-agnostic lifecycle state of an order. Broker
// adapters normalize their native statuses into these values before they
// reach the engine.
type OrderStatus string

const (
	StatusNew       OrderStatus = "new"
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
	StatusExpired   OrderStatus = "expired"
	// StatusError marks an order whose status could not be determined.
	StatusError OrderStatus = "error"
	// StatusTimeout marks an order still pending when a settlement wait gave up.
	StatusTimeout OrderStatus = "timeout"
)

// Terminal reports whether the order can no longer transition.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusError:
		return true
	}
	return false
}

// Quote is a bid/ask snapshot for one pricing decision.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// Valid reports whether both sides of the quote are usable.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Bid < q.Ask
}

// PlannedOrder is one order the orchestrator decided to place. Quantity is
// whole shares and always positive.
type PlannedOrder struct {
	Symbol string
	Side   Side
	Qty    int
	// Price is the reference price the plan was built against.
	Price  float64
	Reason string
}

// EstimatedValue is the notional of the planned order at its reference price.
func (p PlannedOrder) EstimatedValue() float64 {
	return float64(p.Qty) * p.Price
}

// ExecutedOrder is an order the broker accepted, as reported back to the
// caller of Rebalance.
type ExecutedOrder struct {
	Symbol  string  `json:"symbol"`
	Side    Side    `json:"side"`
	Qty     int     `json:"qty"`
	OrderID string  `json:"order_id"`
	Price   float64 `json:"price"`
	// EstimatedValue is qty * last seen price at submission time.
	EstimatedValue float64 `json:"estimated_value"`
	Reason         string  `json:"reason,omitempty"`
}

// AccountSnapshot is the broker account state at one point in time. It is
// stale the moment an order executes and must be re-fetched.
type AccountSnapshot struct {
	Cash           float64
	PortfolioValue float64
	BuyingPower    float64
}

// PositionSnapshot is a single held position.
type PositionSnapshot struct {
	Symbol      string
	Qty         int
	MarketValue float64
}

// OrderUpdate is a single event from the broker's order-update stream.
type OrderUpdate struct {
	OrderID string
	Status  OrderStatus
}

// SettlementStatus is the overall outcome of a settlement wait.
type SettlementStatus string

const (
	SettlementCompleted SettlementStatus = "completed"
	SettlementTimeout   SettlementStatus = "timeout"
	SettlementError     SettlementStatus = "error"
)

// SettlementOutcome reports the terminal status of every watched order.
// Orders has one entry per input order id; ids unresolved when the wait gave
// up are present with StatusTimeout.
type SettlementOutcome struct {
	Orders map[string]OrderStatus
	Status SettlementStatus
}
