package domain

import "time"

// ProfitFactorCap bounds the profit factor when there are no losing trades.
const ProfitFactorCap = 999.0

// PerformanceReport aggregates a backtest run.
type PerformanceReport struct {
	Trades         int                    `json:"trades"`
	Wins           int                    `json:"wins"`
	Losses         int                    `json:"losses"`
	WinRate        float64                `json:"win_rate"`
	ProfitFactor   float64                `json:"profit_factor"`
	Sharpe         float64                `json:"sharpe"`
	MaxDrawdown    float64                `json:"max_drawdown"`
	InitialCapital float64                `json:"initial_capital"`
	FinalCapital   float64                `json:"final_capital"`
	TotalPnL       float64                `json:"total_pnl"`
	TotalFees      float64                `json:"total_fees"`
	AvgTrade       float64                `json:"avg_trade"`
	AvgDuration    time.Duration          `json:"avg_duration"`
	Ticks          int                    `json:"ticks"`
	Skipped        int                    `json:"skipped"`
	Rejected       int                    `json:"rejected"`
	Freezes        int                    `json:"freezes"`
	Frozen         bool                   `json:"frozen"`
	Start          time.Time              `json:"start"`
	End            time.Time              `json:"end"`
	ExitReasons    map[ExitReason]int     `json:"exit_reasons"`
	ReasonStats    map[Reason]ReasonStats `json:"reason_stats"`
}

// ReasonStats is the aggregate performance of one reason code.
type ReasonStats struct {
	Reason   Reason  `json:"reason"`
	Count    int     `json:"count"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Blocked  int     `json:"blocked"`
	WinRate  float64 `json:"win_rate"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
}

// WalkForwardReport holds one report per sub-range.
type WalkForwardReport struct {
	Train    PerformanceReport `json:"train"`
	Validate PerformanceReport `json:"validate"`
	Test     PerformanceReport `json:"test"`
}

// RunRecord is a persisted backtest or paper run.
type RunRecord struct {
	ID        string            `json:"id"`
	Mode      string            `json:"mode"`
	Strategy  string            `json:"strategy"`
	Label     string            `json:"label"`
	StartedAt time.Time         `json:"started_at"`
	Report    PerformanceReport `json:"report"`
}
