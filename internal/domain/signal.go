package domain

import "time"

// Direction is the side of a position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// OrderSide returns the side of the order that opens a position in this direction.
func (d Direction) OrderSide() Side {
	if d == Short {
		return Sell
	}
	return Buy
}

// Signal is a strategy's trade proposal. It lives for one tick.
type Signal struct {
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Reason     Reason    `json:"reason"`
	Strategy   string    `json:"strategy"`
	At         time.Time `json:"at"`

	// Optional exit levels. Zero means the engine applies its configured
	// percentages from the fill price.
	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
}
