package domain

import (
	"encoding/json"
	"time"
)

// LogCategory tags a decision log entry.
type LogCategory string

const (
	LogSignal         LogCategory = "SIGNAL"
	LogRiskDecision   LogCategory = "RISK_DECISION"
	LogPositionOpened LogCategory = "POSITION_OPENED"
	LogPositionClosed LogCategory = "POSITION_CLOSED"
	LogTickRejected   LogCategory = "TICK_REJECTED"
	LogError          LogCategory = "ERROR"
	LogStateChange    LogCategory = "STATE_CHANGE"
	LogRunStarted     LogCategory = "RUN_STARTED"
)

// LogEntry is one immutable line of the decision log.
type LogEntry struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"ts"`
	Category  LogCategory     `json:"category"`
	Payload   json.RawMessage `json:"payload"`
	Checksum  string          `json:"checksum"`
}

// Decode unmarshals the payload into v.
func (e LogEntry) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// PositionOpened is the payload of LogPositionOpened.
type PositionOpened struct {
	Position Position   `json:"position"`
	Fill     FillResult `json:"fill"`
}

// PositionClosed is the payload of LogPositionClosed.
type PositionClosed struct {
	Trade Trade `json:"trade"`
}

// RunStarted is the payload written when a fresh log is initialised.
type RunStarted struct {
	RunID          string    `json:"run_id"`
	InitialCapital float64   `json:"initial_capital"`
	Strategy       string    `json:"strategy"`
	At             time.Time `json:"at"`
}

// TickRejected is the payload for SKIP/REJECT/FREEZE verdicts. Tick and
// Result are stored with non-finite values zeroed; NonFinite keeps the
// original values as text.
type TickRejected struct {
	Tick      Tick           `json:"tick"`
	Result    SanitizeResult `json:"result"`
	NonFinite string         `json:"non_finite,omitempty"`
}

// RiskDecisionRecord is the payload of LogRiskDecision.
type RiskDecisionRecord struct {
	Request  TradeRequest `json:"request"`
	Decision RiskDecision `json:"decision"`
	Attempt  int          `json:"attempt"`
}
