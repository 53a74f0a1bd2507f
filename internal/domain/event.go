package domain

import "time"

// EventType is the closed set of published event kinds.
type EventType string

const (
	EventTickReceived   EventType = "TICK_RECEIVED"
	EventSignal         EventType = "SIGNAL"
	EventRiskDecision   EventType = "RISK_DECISION"
	EventFill           EventType = "FILL"
	EventPositionClosed EventType = "POSITION_CLOSED"
	EventError          EventType = "ERROR"
	EventStateChange    EventType = "STATE_CHANGE"
)

// EventTypes lists every event type.
func EventTypes() []EventType {
	return []EventType{
		EventTickReceived, EventSignal, EventRiskDecision, EventFill,
		EventPositionClosed, EventError, EventStateChange,
	}
}

// Event is a typed notification. Payload is one of the domain types
// (Tick, Signal, RiskDecision, Position, Trade, StateChange, ErrorInfo).
type Event struct {
	Type       EventType
	Instrument string
	Seq        uint64 // decision log sequence, 0 when not logged
	Reason     Reason
	CreatedAt  time.Time
	Payload    any
}

// StateChange records an engine state transition.
type StateChange struct {
	From   EngineState `json:"from"`
	To     EngineState `json:"to"`
	Reason Reason      `json:"reason"`
	Detail string      `json:"detail,omitempty"`
	At     time.Time   `json:"at"`
}

// ErrorInfo describes a fault or rejected input.
type ErrorInfo struct {
	Kind       string    `json:"kind"`
	Instrument string    `json:"instrument,omitempty"`
	Reason     Reason    `json:"reason"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}
