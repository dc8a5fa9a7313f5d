package eod

// journalLine mirrors the JSON lines the tradelog package writes for each
// executed rebalance order.
type journalLine struct {
	Time           string
	Symbol         string
	Side           string
	Qty            int
	Price          float64
	OrderID        string
	Reason         string
	EstimatedValue float64
	RunID          string `json:"run_id"`
}

// symbolSummary accumulates one day's activity for a symbol.
type symbolSummary struct {
	Symbol      string
	BuyQty      int
	BuyValue    float64
	SellQty     int
	SellValue   float64
	RealizedPnL float64
	Runs        map[string]struct{}
}
