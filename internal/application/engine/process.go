package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Process runs one tick through the pipeline. SKIP, REJECT and FREEZE
// verdicts are logged and return nil. A tick older than the newest processed one returns
// ErrOutOfSequence. Faults in the later steps are logged, published and
// returned as *domain.FaultError; the engine keeps running.
func (e *Engine) Process(ctx context.Context, tick domain.Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == domain.StateStopped {
		return fmt.Errorf("engine.Process: %w", domain.ErrEngineStopped)
	}
	e.ticks++

	res := e.sanitizer.Validate(tick, e.reference(tick))
	switch res.Verdict {
	case domain.VerdictSkip, domain.VerdictReject:
		e.rejectTick(ctx, tick, res)
		return nil
	case domain.VerdictFreeze:
		e.rejectTick(ctx, tick, res)
		if err := e.transition(ctx, domain.StateFrozen, res.Reason, res.Detail); err != nil {
			return fmt.Errorf("engine.Process: %w", err)
		}
		return nil
	}
	e.publish(domain.EventTickReceived, tick.Instrument, 0, res.Reason, res)

	if tick.Timestamp.Before(e.lastTick) {
		err := fmt.Errorf("engine.Process: %s at %s before %s: %w",
			tick.Instrument, tick.Timestamp.Format(time.RFC3339Nano), e.lastTick.Format(time.RFC3339Nano), domain.ErrOutOfSequence)
		e.logError(ctx, tick, "sequence", domain.ErrorOutOfSequence, err)
		return err
	}
	e.lastTick = tick.Timestamp
	e.lastTicks[tick.Instrument] = tick
	e.historyFor(tick.Instrument).Push(tick)

	if err := e.guarded(ctx, tick); err != nil {
		e.faults++
		e.logError(ctx, tick, "fault", domain.ErrorUnknown, err)
		return err
	}
	return nil
}

// Recoverable reports whether a Process error leaves the engine able to
// take the next tick.
func Recoverable(err error) bool {
	return errors.Is(err, domain.ErrSystemFault) || errors.Is(err, domain.ErrOutOfSequence)
}

// reference is the clock staleness is measured against.
func (e *Engine) reference(tick domain.Tick) time.Time {
	ref := e.lastTick
	if e.cfg.LiveReference {
		if now := e.clock(); now.After(ref) {
			ref = now
		}
	}
	if ref.IsZero() {
		return tick.Timestamp
	}
	return ref
}

// rejectTick logs a non-ALLOW verdict before announcing it. A tick that
// cannot be logged becomes an ERROR entry; it never stops the run.
func (e *Engine) rejectTick(ctx context.Context, tick domain.Tick, res domain.SanitizeResult) {
	switch res.Verdict {
	case domain.VerdictReject:
		e.rejected++
	case domain.VerdictFreeze:
		e.freezes++
	default:
		e.skipped++
	}
	e.lastReason = res.Reason

	clean, nonFinite := tick.Encodable()
	res = res.Encodable()
	seq, err := e.log.Append(ctx, domain.LogTickRejected, domain.TickRejected{Tick: clean, Result: res, NonFinite: nonFinite})
	if err != nil {
		e.logError(ctx, clean, "log", res.Reason, fmt.Errorf("log rejected tick: %w", err))
		return
	}
	e.record(res.Reason, domain.Outcome{Kind: domain.OutcomeBlocked}, tick.Timestamp)
	e.publish(domain.EventTickReceived, tick.Instrument, seq, res.Reason, res)
	slog.Debug("engine: tick not accepted",
		"instrument", tick.Instrument, "verdict", res.Verdict, "reason", res.Reason, "detail", res.Detail)
}

// guarded runs the mark/exit/entry steps and converts panics and errors
// into faults.
func (e *Engine) guarded(ctx context.Context, tick domain.Tick) (err error) {
	stage := "mark"
	defer func() {
		if r := recover(); r != nil {
			err = &domain.FaultError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	e.mark(tick)

	stage = "exit"
	if err := e.exits(ctx, tick); err != nil {
		return &domain.FaultError{Stage: stage, Err: err}
	}

	if e.state != domain.StateRunning {
		return nil
	}
	stage = "entry"
	if err := e.entry(ctx, tick); err != nil {
		return &domain.FaultError{Stage: stage, Err: err}
	}
	return nil
}

// logError records a fault or sequencing error everywhere an operator looks.
func (e *Engine) logError(ctx context.Context, tick domain.Tick, kind string, reason domain.Reason, cause error) {
	e.lastErr = cause.Error()
	e.lastReason = reason
	info := domain.ErrorInfo{
		Kind:       kind,
		Instrument: tick.Instrument,
		Reason:     reason,
		Message:    cause.Error(),
		At:         tick.Timestamp,
	}
	slog.Error("engine: tick skipped",
		"instrument", tick.Instrument,
		"ts", tick.Timestamp,
		"kind", kind,
		"err", cause,
	)
	seq, err := e.log.Append(ctx, domain.LogError, info)
	if err != nil {
		slog.Error("engine: error entry not logged", "err", err)
	}
	e.record(reason, domain.Outcome{Kind: domain.OutcomeNeutral}, tick.Timestamp)
	e.publish(domain.EventError, tick.Instrument, seq, reason, info)
}

// mark revalues the instrument's positions. Each position is replaced as a
// whole, never edited in place.
func (e *Engine) mark(tick domain.Tick) {
	px := tick.Price()
	for id, p := range e.positions {
		if p.Instrument != tick.Instrument {
			continue
		}
		e.positions[id] = p.Mark(px, tick.Timestamp)
	}
}

// exits closes positions hitting TP/SL/time stop, then any the Risk Guard
// flags for excessive unrealized loss.
func (e *Engine) exits(ctx context.Context, tick domain.Tick) error {
	px := tick.Price()
	for _, p := range e.sortedPositions() {
		if p.Instrument != tick.Instrument {
			continue
		}
		reason, ok := p.ExitTrigger(px, tick.Timestamp, e.cfg.MaxHold)
		if !ok {
			continue
		}
		if err := e.closePosition(ctx, p, tick, reason); err != nil {
			return err
		}
	}

	assessment := e.guard.Assess(e.snapshot())
	for _, id := range assessment.Close {
		p, ok := e.positions[id]
		if !ok {
			continue
		}
		last, ok := e.lastTicks[p.Instrument]
		if !ok {
			continue
		}
		slog.Warn("engine: risk close", "position", id, "unrealized", p.UnrealizedPnL, "reason", assessment.Reason)
		if err := e.closePosition(ctx, p, last, domain.ExitRiskClose); err != nil {
			return err
		}
	}
	return nil
}

// closePosition fills the exit, logs the trade and only then removes the
// position and folds the P&L into the Risk Guard.
func (e *Engine) closePosition(ctx context.Context, p domain.Position, tick domain.Tick, reason domain.ExitReason) error {
	order := domain.Order{
		Instrument: p.Instrument,
		Side:       domain.Buy,
		Type:       domain.Market,
		Price:      tick.Price(),
		Size:       p.Size,
	}
	if p.Direction == domain.Long {
		order.Side = domain.Sell
	}
	fill, err := e.executor.Submit(ctx, order, domain.BookFromTick(tick))
	if err != nil {
		return fmt.Errorf("close %s: %w", p.ID, err)
	}
	trade := p.Close(fill, reason, tick.Timestamp)

	seq, err := e.log.Append(ctx, domain.LogPositionClosed, domain.PositionClosed{Trade: trade})
	if err != nil {
		return fmt.Errorf("close %s: log: %w", p.ID, err)
	}
	delete(e.positions, p.ID)
	e.trades = append(e.trades, trade)
	e.guard.Update(trade)
	e.record(trade.Reason, domain.OutcomeFromTrade(trade), trade.ClosedAt)
	e.lastReason = trade.Reason

	slog.Info("engine: closed position",
		"id", trade.ID,
		"instrument", trade.Instrument,
		"direction", trade.Direction,
		"exit", reason,
		"entry", trade.EntryPrice,
		"exit_price", trade.ExitPrice,
		"pnl", fmt.Sprintf("%.2f", trade.RealizedPnL),
	)
	e.publish(domain.EventPositionClosed, trade.Instrument, seq, trade.Reason, trade)

	if d, breach := e.guard.CheckDrawdown(); breach {
		return e.freezeOnRisk(ctx, domain.TradeRequest{}, d, 0)
	}
	return nil
}

// freezeOnRisk logs the FREEZE decision and moves the engine to FROZEN.
func (e *Engine) freezeOnRisk(ctx context.Context, req domain.TradeRequest, d domain.RiskDecision, attempt int) error {
	if attempt == 0 {
		seq, err := e.log.Append(ctx, domain.LogRiskDecision, domain.RiskDecisionRecord{Request: req, Decision: d})
		if err != nil {
			return fmt.Errorf("log risk decision: %w", err)
		}
		e.publish(domain.EventRiskDecision, req.Signal.Instrument, seq, d.Reason, d)
	}
	e.record(d.Reason, domain.Outcome{Kind: domain.OutcomeBlocked}, e.lastTick)
	return e.transition(ctx, domain.StateFrozen, d.Reason, d.Detail)
}

// entry evaluates the strategy and, if it proposes a trade, runs it through
// the position limit and the Risk Guard before filling.
func (e *Engine) entry(ctx context.Context, tick domain.Tick) error {
	sig, err := e.strategy.Evaluate(tick, e.historyFor(tick.Instrument))
	if err != nil {
		return fmt.Errorf("strategy %s: %w", e.strategy.Name(), err)
	}
	if sig == nil {
		return nil
	}
	if sig.At.IsZero() {
		sig.At = tick.Timestamp
	}

	sigSeq, err := e.log.Append(ctx, domain.LogSignal, *sig)
	if err != nil {
		return fmt.Errorf("log signal: %w", err)
	}
	e.lastReason = sig.Reason
	e.publish(domain.EventSignal, sig.Instrument, sigSeq, sig.Reason, *sig)

	req := domain.TradeRequest{Signal: *sig, Notional: e.notionalFor(*sig)}

	if open := e.openOn(sig.Instrument); open >= e.cfg.MaxPositionsPerInstrument {
		d := domain.RiskDecision{
			Action: domain.RiskReduce,
			Reason: domain.RiskPositionOpen,
			Detail: fmt.Sprintf("%d open position(s) on %s, limit %d", open, sig.Instrument, e.cfg.MaxPositionsPerInstrument),
		}
		_, err := e.logDecision(ctx, req, d, 1)
		return err
	}

	for attempt := 1; attempt <= 2; attempt++ {
		d := e.guard.CanTrade(req, e.snapshot())
		if _, err := e.logDecision(ctx, req, d, attempt); err != nil {
			return err
		}
		switch {
		case d.Action == domain.RiskFreeze:
			return e.freezeOnRisk(ctx, req, d, attempt)
		case d.Action.Permits():
			return e.open(ctx, tick, req, sigSeq)
		case d.Action != domain.RiskReduce || d.MaxNotional <= 0:
			return nil
		}
		req.Notional = d.MaxNotional
	}
	return nil
}

// logDecision writes and publishes a risk decision. Anything that does not
// let the trade through is attributed to its reason as blocked.
func (e *Engine) logDecision(ctx context.Context, req domain.TradeRequest, d domain.RiskDecision, attempt int) (uint64, error) {
	seq, err := e.log.Append(ctx, domain.LogRiskDecision, domain.RiskDecisionRecord{Request: req, Decision: d, Attempt: attempt})
	if err != nil {
		return 0, fmt.Errorf("log risk decision: %w", err)
	}
	e.lastReason = d.Reason
	if !d.Action.Permits() && d.Action != domain.RiskFreeze {
		e.record(d.Reason, domain.Outcome{Kind: domain.OutcomeBlocked}, req.Signal.At)
		slog.Debug("engine: signal not taken",
			"instrument", req.Signal.Instrument, "action", d.Action, "reason", d.Reason, "detail", d.Detail)
	}
	e.publish(domain.EventRiskDecision, req.Signal.Instrument, seq, d.Reason, d)
	return seq, nil
}

// open fills the approved request and commits the new position.
func (e *Engine) open(ctx context.Context, tick domain.Tick, req domain.TradeRequest, sigSeq uint64) error {
	sig := req.Signal
	price := sig.Price
	if price <= 0 {
		price = tick.Price()
	}
	order := domain.Order{
		Instrument: sig.Instrument,
		Side:       sig.Direction.OrderSide(),
		Type:       e.cfg.OrderType,
		Price:      price,
		Size:       req.Notional / price,
	}
	fill, err := e.executor.Submit(ctx, order, domain.BookFromTick(tick))
	if err != nil {
		if errors.Is(err, domain.ErrDataQuality) || errors.Is(err, domain.ErrRiskViolation) {
			e.logError(ctx, tick, "execution", domain.ErrorExecutionFailed, err)
			return nil
		}
		return fmt.Errorf("submit: %w", err)
	}

	tp, sl := e.exitLevels(sig, fill.Price)
	p := domain.Position{
		ID:         e.nextPositionID(sig.Instrument),
		Instrument: sig.Instrument,
		Direction:  sig.Direction,
		EntryPrice: fill.Price,
		Size:       fill.Size,
		TakeProfit: tp,
		StopLoss:   sl,
		OpenedAt:   tick.Timestamp,
		Reason:     sig.Reason,
		Strategy:   sig.Strategy,
		Confidence: sig.Confidence,
		EntryFee:   fill.Fee,
		IsMaker:    fill.IsMaker,
		SignalSeq:  sigSeq,
	}

	seq, err := e.log.Append(ctx, domain.LogPositionOpened, domain.PositionOpened{Position: p, Fill: fill})
	if err != nil {
		return fmt.Errorf("log open: %w", err)
	}
	e.positions[p.ID] = p.Mark(tick.Price(), tick.Timestamp)
	e.opened++
	e.guard.RecordFill(tick.Timestamp)

	slog.Info("engine: opened position",
		"id", p.ID,
		"instrument", p.Instrument,
		"direction", p.Direction,
		"price", p.EntryPrice,
		"size", p.Size,
		"tp", p.TakeProfit,
		"sl", p.StopLoss,
		"reason", p.Reason,
		"confidence", fmt.Sprintf("%.2f", p.Confidence),
	)
	e.publish(domain.EventFill, p.Instrument, seq, p.Reason, domain.PositionOpened{Position: p, Fill: fill})
	return nil
}

// notionalFor sizes a signal by confidence: half the allocation at
// confidence 0, the full allocation at 1.
func (e *Engine) notionalFor(sig domain.Signal) float64 {
	capital := e.guard.State().CurrentCapital
	return capital * e.cfg.PositionFraction * (0.5 + 0.5*sig.Confidence)
}

// exitLevels uses the strategy's levels when they sit on the right side of
// the fill, the configured percentages otherwise.
func (e *Engine) exitLevels(sig domain.Signal, fill float64) (tp, sl float64) {
	sign := sig.Direction.Sign()
	tp = fill * (1 + sign*e.cfg.TakeProfitPct)
	sl = fill * (1 - sign*e.cfg.StopLossPct)
	if sig.TakeProfit > 0 && (sig.TakeProfit-fill)*sign > 0 {
		tp = sig.TakeProfit
	}
	if sig.StopLoss > 0 && (fill-sig.StopLoss)*sign > 0 {
		sl = sig.StopLoss
	}
	if e.cfg.TakeProfitPct <= 0 && sig.TakeProfit <= 0 {
		tp = 0
	}
	if e.cfg.StopLossPct <= 0 && sig.StopLoss <= 0 {
		sl = 0
	}
	return tp, sl
}

func (e *Engine) openOn(instrument string) int {
	n := 0
	for _, p := range e.positions {
		if p.Instrument == instrument {
			n++
		}
	}
	return n
}

// CloseAll closes every open position at the last accepted tick of its
// instrument. Backtests call it at the end of data.
func (e *Engine) CloseAll(ctx context.Context, reason domain.ExitReason) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.sortedPositions() {
		last, ok := e.lastTicks[p.Instrument]
		if !ok {
			continue
		}
		if err := e.closePosition(ctx, p, last, reason); err != nil {
			return fmt.Errorf("engine.CloseAll: %w", err)
		}
	}
	return nil
}
