package domain

import "time"

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTimeStop   ExitReason = "TIME_STOP"
	ExitRiskClose  ExitReason = "RISK_CLOSE"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// Position is an open trade. The engine owns it; every mutation produces a
// new value so a failed tick never leaves a half-updated position behind.
type Position struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	TakeProfit float64   `json:"take_profit"`
	StopLoss   float64   `json:"stop_loss"`
	OpenedAt   time.Time `json:"opened_at"`
	Reason     Reason    `json:"reason"`
	Strategy   string    `json:"strategy"`
	Confidence float64   `json:"confidence"`
	EntryFee   float64   `json:"entry_fee"`
	IsMaker    bool      `json:"is_maker"`

	// SignalSeq is the decision log sequence of the originating signal.
	SignalSeq uint64 `json:"signal_seq"`

	// Mark fields are transient: recomputed on every tick, never logged
	// as part of the open.
	MarkPrice     float64   `json:"mark_price,omitempty"`
	MarkedAt      time.Time `json:"marked_at,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl,omitempty"`
}

// Notional is the entry value of the position.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.Size
}

// Exposure is the current market value, using the mark when available.
func (p Position) Exposure() float64 {
	if p.MarkPrice > 0 {
		return p.MarkPrice * p.Size
	}
	return p.Notional()
}

// GrossPnL is the price P&L at the given price, before fees.
func (p Position) GrossPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Size * p.Direction.Sign()
}

// Mark returns a copy of p revalued at price.
func (p Position) Mark(price float64, at time.Time) Position {
	p.MarkPrice = price
	p.MarkedAt = at
	p.UnrealizedPnL = p.GrossPnL(price) - p.EntryFee
	return p
}

// ExitTrigger checks take-profit, stop-loss and max holding time at price.
// maxHold <= 0 disables the time stop. Levels at zero are disabled.
func (p Position) ExitTrigger(price float64, at time.Time, maxHold time.Duration) (ExitReason, bool) {
	switch p.Direction {
	case Long:
		if p.TakeProfit > 0 && price >= p.TakeProfit {
			return ExitTakeProfit, true
		}
		if p.StopLoss > 0 && price <= p.StopLoss {
			return ExitStopLoss, true
		}
	case Short:
		if p.TakeProfit > 0 && price <= p.TakeProfit {
			return ExitTakeProfit, true
		}
		if p.StopLoss > 0 && price >= p.StopLoss {
			return ExitStopLoss, true
		}
	}
	if maxHold > 0 && at.Sub(p.OpenedAt) >= maxHold {
		return ExitTimeStop, true
	}
	return "", false
}

// Close converts the position into a Trade at the given fill.
func (p Position) Close(fill FillResult, reason ExitReason, at time.Time) Trade {
	p.MarkPrice = fill.Price
	p.MarkedAt = at
	p.UnrealizedPnL = 0
	gross := p.GrossPnL(fill.Price)
	fees := p.EntryFee + fill.Fee
	return Trade{
		Position:    p,
		ExitPrice:   fill.Price,
		ExitFee:     fill.Fee,
		ExitReason:  reason,
		GrossPnL:    gross,
		Fees:        fees,
		RealizedPnL: gross - fees,
		Duration:    at.Sub(p.OpenedAt),
		ClosedAt:    at,
	}
}

// Trade is the realized outcome of a Position. Never mutated once built.
type Trade struct {
	Position
	ExitPrice   float64       `json:"exit_price"`
	ExitFee     float64       `json:"exit_fee"`
	ExitReason  ExitReason    `json:"exit_reason"`
	GrossPnL    float64       `json:"gross_pnl"`
	Fees        float64       `json:"fees"`
	RealizedPnL float64       `json:"realized_pnl"`
	Duration    time.Duration `json:"duration"`
	ClosedAt    time.Time     `json:"closed_at"`
}

// Return is the realized P&L relative to the entry notional.
func (t Trade) Return() float64 {
	n := t.Notional()
	if n == 0 {
		return 0
	}
	return t.RealizedPnL / n
}

// Won reports whether the trade made money after fees.
func (t Trade) Won() bool {
	return t.RealizedPnL > 0
}
