package decisionlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// RiskApplier is the subset of the Risk Guard that recovery drives. Replay
// goes through the same methods the live engine calls, so the rebuilt
// RiskState matches the one the log was written from.
type RiskApplier interface {
	Reset(initialCapital float64)
	RecordFill(at time.Time)
	Update(trade domain.Trade)
	Halt(reason string)
	ClearHalt()
}

// Recovered is the engine state rebuilt from a log.
type Recovered struct {
	RunID          string
	InitialCapital float64
	// Positions are the open positions, keyed by ID, without mark fields.
	Positions map[string]domain.Position
	Trades    []domain.Trade
	// Opened counts every position ever opened; it seeds deterministic IDs.
	Opened int
	State  domain.EngineState
	// Frozen survives a stop: a log whose last freeze was never resumed
	// restarts frozen.
	Frozen bool
	// LastTick is the newest tick time seen in a signal, open or close.
	LastTick time.Time
	Entries  int
	LastSeq  uint64
}

// Recover replays log from the first entry and applies it to guard.
// Any integrity failure aborts recovery.
func Recover(ctx context.Context, log ports.DecisionLog, guard RiskApplier) (*Recovered, error) {
	rec := &Recovered{
		Positions: make(map[string]domain.Position),
		State:     domain.StateStopped,
	}
	see := func(ts time.Time) {
		if ts.After(rec.LastTick) {
			rec.LastTick = ts
		}
	}

	err := log.Replay(ctx, 0, func(e domain.LogEntry) error {
		rec.Entries++
		rec.LastSeq = e.Seq
		switch e.Category {
		case domain.LogRunStarted:
			var p domain.RunStarted
			if err := e.Decode(&p); err != nil {
				return decodeErr(e, err)
			}
			rec.RunID = p.RunID
			rec.InitialCapital = p.InitialCapital
			guard.Reset(p.InitialCapital)

		case domain.LogSignal:
			var s domain.Signal
			if err := e.Decode(&s); err != nil {
				return decodeErr(e, err)
			}
			see(s.At)

		case domain.LogRiskDecision:
			var r domain.RiskDecisionRecord
			if err := e.Decode(&r); err != nil {
				return decodeErr(e, err)
			}
			if r.Decision.Action == domain.RiskFreeze && r.Decision.Reason == domain.RiskDrawdownExceeded {
				guard.Halt(r.Decision.Detail)
			}

		case domain.LogPositionOpened:
			var p domain.PositionOpened
			if err := e.Decode(&p); err != nil {
				return decodeErr(e, err)
			}
			rec.Positions[p.Position.ID] = p.Position
			rec.Opened++
			guard.RecordFill(p.Position.OpenedAt)
			see(p.Position.OpenedAt)

		case domain.LogPositionClosed:
			var p domain.PositionClosed
			if err := e.Decode(&p); err != nil {
				return decodeErr(e, err)
			}
			if _, ok := rec.Positions[p.Trade.ID]; !ok {
				return &domain.IntegrityError{Seq: e.Seq, Reason: fmt.Sprintf("close of unknown position %s", p.Trade.ID)}
			}
			delete(rec.Positions, p.Trade.ID)
			rec.Trades = append(rec.Trades, p.Trade)
			guard.Update(p.Trade)
			see(p.Trade.ClosedAt)

		case domain.LogTickRejected:
			// rejected ticks never advance the sequence, so only check
			// that the entry decodes
			var p domain.TickRejected
			if err := e.Decode(&p); err != nil {
				return decodeErr(e, err)
			}

		case domain.LogStateChange:
			var sc domain.StateChange
			if err := e.Decode(&sc); err != nil {
				return decodeErr(e, err)
			}
			rec.State = sc.To
			switch {
			case sc.To == domain.StateFrozen:
				rec.Frozen = true
			case sc.Reason == domain.SystemResume:
				rec.Frozen = false
				guard.ClearHalt()
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decisionlog.Recover: %w", err)
	}

	slog.Info("decisionlog: recovered",
		"entries", rec.Entries,
		"open_positions", len(rec.Positions),
		"trades", len(rec.Trades),
		"state", rec.State,
	)
	return rec, nil
}

func decodeErr(e domain.LogEntry, err error) error {
	return &domain.IntegrityError{Seq: e.Seq, Reason: fmt.Sprintf("decode %s payload: %v", e.Category, err)}
}
