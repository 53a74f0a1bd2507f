package domain

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes resting limit orders from market orders.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// Order is a request to trade Size units at Price.
type Order struct {
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
}

// Notional is Price × Size.
func (o Order) Notional() float64 {
	return o.Price * o.Size
}

// FillResult is the simulated or reported outcome of an order.
type FillResult struct {
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
	Notional    float64 `json:"notional"`
	Fee         float64 `json:"fee"`
	FeeRate     float64 `json:"fee_rate"`
	IsMaker     bool    `json:"is_maker"`
	SlippageBps float64 `json:"slippage_bps"`
}
