package domain

import "time"

// RiskAction is the Risk Guard verdict, ordered by severity.
type RiskAction string

const (
	RiskAllow  RiskAction = "ALLOW"
	RiskWarn   RiskAction = "WARN"
	RiskReduce RiskAction = "REDUCE"
	RiskClose  RiskAction = "CLOSE"
	RiskFreeze RiskAction = "FREEZE"
)

// Severity orders actions so the worst of several checks can be kept.
func (a RiskAction) Severity() int {
	switch a {
	case RiskWarn:
		return 1
	case RiskReduce:
		return 2
	case RiskClose:
		return 3
	case RiskFreeze:
		return 4
	default:
		return 0
	}
}

// Permits reports whether a trade may proceed at the requested size.
func (a RiskAction) Permits() bool {
	return a == RiskAllow || a == RiskWarn
}

// RiskState is owned by the Risk Guard. Callers only see copies.
type RiskState struct {
	InitialCapital float64   `json:"initial_capital"`
	PeakCapital    float64   `json:"peak_capital"`
	CurrentCapital float64   `json:"current_capital"`
	Drawdown       float64   `json:"drawdown"`
	RealizedPnL    float64   `json:"realized_pnl"`
	TradesInWindow int       `json:"trades_in_window"`
	WindowStart    time.Time `json:"window_start"`
	ClosedTrades   int       `json:"closed_trades"`
	Halted         bool      `json:"halted"`
	HaltReason     string    `json:"halt_reason,omitempty"`
}

// Drawdown computes (peak-current)/peak clamped to [0,1], 0 when peak <= 0.
func Drawdown(peak, current float64) float64 {
	if peak <= 0 {
		return 0
	}
	dd := (peak - current) / peak
	if dd < 0 {
		return 0
	}
	if dd > 1 {
		return 1
	}
	return dd
}

// TradeRequest is what the engine asks the Risk Guard to approve.
type TradeRequest struct {
	Signal   Signal  `json:"signal"`
	Notional float64 `json:"notional"`
}

// ExposureSnapshot is an immutable view of the engine's open positions.
type ExposureSnapshot struct {
	Positions []Position
}

// UnrealizedPnL sums the marked P&L of every open position.
func (s ExposureSnapshot) UnrealizedPnL() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.UnrealizedPnL
	}
	return total
}

// TotalExposure is the sum of absolute position values.
func (s ExposureSnapshot) TotalExposure() float64 {
	var total float64
	for _, p := range s.Positions {
		total += p.Exposure()
	}
	return total
}

// InstrumentExposure is the value held in one instrument.
func (s ExposureSnapshot) InstrumentExposure(instrument string) float64 {
	var total float64
	for _, p := range s.Positions {
		if p.Instrument == instrument {
			total += p.Exposure()
		}
	}
	return total
}

// RiskDecision is the result of a pre-trade check.
type RiskDecision struct {
	Action RiskAction `json:"action"`
	Reason Reason     `json:"reason"`
	Detail string     `json:"detail,omitempty"`
	// MaxNotional is set on REDUCE: the largest notional that would pass.
	// Zero means the trade cannot be resized into something viable.
	MaxNotional float64 `json:"max_notional,omitempty"`
	Drawdown    float64 `json:"drawdown"`
}

// RiskAssessment is the per-tick ongoing check over open positions.
type RiskAssessment struct {
	Action       RiskAction
	Reason       Reason
	SoftDrawdown float64
	// Close lists the position IDs that breached the per-position loss limit.
	Close []string
}
