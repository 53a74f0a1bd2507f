package domain

import "strings"

// Reason is a categorical tag attached to every decision.
type Reason string

// ReasonCategory groups reason codes for reporting.
type ReasonCategory string

const (
	CategorySignal  ReasonCategory = "signal"
	CategoryRisk    ReasonCategory = "risk"
	CategoryMarket  ReasonCategory = "market"
	CategorySystem  ReasonCategory = "system"
	CategoryError   ReasonCategory = "error"
	CategoryHistory ReasonCategory = "history"
)

const (
	SignalStrong        Reason = "SIGNAL_STRONG"
	SignalMedium        Reason = "SIGNAL_MEDIUM"
	SignalWeak          Reason = "SIGNAL_WEAK"
	SignalLiquidation   Reason = "SIGNAL_LIQUIDATION"
	SignalMeanReversion Reason = "SIGNAL_MEAN_REVERSION"
	SignalTrend         Reason = "SIGNAL_TREND"
	SignalVolatility    Reason = "SIGNAL_VOLATILITY"
	SignalCVD           Reason = "SIGNAL_CVD"
	SignalArbitrage     Reason = "SIGNAL_ARBITRAGE"

	RiskLimitOK          Reason = "RISK_LIMIT_OK"
	RiskLimitWarn        Reason = "RISK_LIMIT_WARN"
	RiskLimitExceeded    Reason = "RISK_LIMIT_EXCEEDED"
	RiskDrawdownExceeded Reason = "RISK_DRAWDOWN_EXCEEDED"
	RiskPositionTooLarge Reason = "RISK_POSITION_TOO_LARGE"
	RiskConcentration    Reason = "RISK_CONCENTRATION"
	RiskCorrelation      Reason = "RISK_CORRELATION"
	RiskRateLimit        Reason = "RISK_RATE_LIMIT"
	RiskPositionOpen     Reason = "RISK_POSITION_OPEN"
	RiskPositionLoss     Reason = "RISK_POSITION_LOSS"

	MarketSpreadWide     Reason = "MARKET_SPREAD_WIDE"
	MarketTrendBlock     Reason = "MARKET_TREND_BLOCK"
	MarketVolatilityHigh Reason = "MARKET_VOLATILITY_HIGH"
	MarketVolumeLow      Reason = "MARKET_VOLUME_LOW"
	MarketHours          Reason = "MARKET_HOURS"

	SystemStartup     Reason = "SYSTEM_STARTUP"
	SystemShutdown    Reason = "SYSTEM_SHUTDOWN"
	SystemFreeze      Reason = "SYSTEM_FREEZE"
	SystemResume      Reason = "SYSTEM_RESUME"
	SystemMaintenance Reason = "SYSTEM_MAINTENANCE"

	ErrorDataStale       Reason = "ERROR_DATA_STALE"
	ErrorDataInvalid     Reason = "ERROR_DATA_INVALID"
	ErrorLatencyHigh     Reason = "ERROR_LATENCY_HIGH"
	ErrorConnectionLost  Reason = "ERROR_CONNECTION_LOST"
	ErrorExecutionFailed Reason = "ERROR_EXECUTION_FAILED"
	ErrorOutOfSequence   Reason = "ERROR_OUT_OF_SEQUENCE"
	ErrorUnknown         Reason = "ERROR_UNKNOWN"

	HistSuccess Reason = "HIST_SUCCESS"
	HistFailure Reason = "HIST_FAILURE"
)

var allReasons = []Reason{
	SignalStrong, SignalMedium, SignalWeak, SignalLiquidation, SignalMeanReversion,
	SignalTrend, SignalVolatility, SignalCVD, SignalArbitrage,
	RiskLimitOK, RiskLimitWarn, RiskLimitExceeded, RiskDrawdownExceeded,
	RiskPositionTooLarge, RiskConcentration, RiskCorrelation, RiskRateLimit,
	RiskPositionOpen, RiskPositionLoss,
	MarketSpreadWide, MarketTrendBlock, MarketVolatilityHigh, MarketVolumeLow, MarketHours,
	SystemStartup, SystemShutdown, SystemFreeze, SystemResume, SystemMaintenance,
	ErrorDataStale, ErrorDataInvalid, ErrorLatencyHigh, ErrorConnectionLost,
	ErrorExecutionFailed, ErrorOutOfSequence, ErrorUnknown,
	HistSuccess, HistFailure,
}

var knownReasons = func() map[Reason]struct{} {
	m := make(map[Reason]struct{}, len(allReasons))
	for _, r := range allReasons {
		m[r] = struct{}{}
	}
	return m
}()

// Reasons returns the closed set of reason codes.
func Reasons() []Reason {
	out := make([]Reason, len(allReasons))
	copy(out, allReasons)
	return out
}

// Valid reports whether r belongs to the closed enumeration.
func (r Reason) Valid() bool {
	_, ok := knownReasons[r]
	return ok
}

// Category derives the group from the code prefix.
func (r Reason) Category() ReasonCategory {
	prefix, _, _ := strings.Cut(string(r), "_")
	switch prefix {
	case "SIGNAL":
		return CategorySignal
	case "RISK":
		return CategoryRisk
	case "MARKET":
		return CategoryMarket
	case "SYSTEM":
		return CategorySystem
	case "HIST":
		return CategoryHistory
	default:
		return CategoryError
	}
}

// OutcomeKind classifies what happened after a decision tagged with a reason.
type OutcomeKind string

const (
	OutcomeWin     OutcomeKind = "win"
	OutcomeLoss    OutcomeKind = "loss"
	OutcomeBlocked OutcomeKind = "blocked"
	OutcomeNeutral OutcomeKind = "neutral"
)

// Outcome is what gets recorded against a reason code.
type Outcome struct {
	Kind OutcomeKind
	PnL  float64
}

// OutcomeFromTrade maps a closed trade to win/loss.
func OutcomeFromTrade(t Trade) Outcome {
	if t.Won() {
		return Outcome{Kind: OutcomeWin, PnL: t.RealizedPnL}
	}
	return Outcome{Kind: OutcomeLoss, PnL: t.RealizedPnL}
}
