// Package risk gates every prospective trade against drawdown, sizing,
// concentration and rate limits, and tracks realized capital.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Config holds the limits. Fractions are of current capital unless noted.
type Config struct {
	MaxDrawdown         float64 // hard ceiling on realized drawdown
	WarnFraction        float64 // of MaxDrawdown
	MaxPositionFraction float64
	MinNotional         float64
	MaxConcentration    float64 // of total exposure
	MaxTradesPerWindow  int     // 0 disables
	Window              time.Duration
	MaxPositionLoss     float64 // unrealized loss per position
}

// DefaultConfig returns a 15% drawdown ceiling and a 20% position cap.
func DefaultConfig() Config {
	return Config{
		MaxDrawdown:         0.15,
		WarnFraction:        0.8,
		MaxPositionFraction: 0.2,
		MinNotional:         10,
		MaxConcentration:    0.5,
		MaxTradesPerWindow:  50,
		Window:              24 * time.Hour,
		MaxPositionLoss:     0.03,
	}
}

// Guard owns the RiskState. Only the engine mutates it, through Update,
// RecordFill, Halt and ClearHalt; every other caller gets copies.
type Guard struct {
	cfg Config

	mu    sync.RWMutex
	state domain.RiskState
}

// New creates a Guard starting at initialCapital.
func New(cfg Config, initialCapital float64) *Guard {
	g := &Guard{cfg: cfg}
	g.Reset(initialCapital)
	return g
}

// Reset discards all state and starts again at initialCapital.
func (g *Guard) Reset(initialCapital float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = domain.RiskState{
		InitialCapital: initialCapital,
		PeakCapital:    initialCapital,
		CurrentCapital: initialCapital,
	}
}

// State returns a copy of the current RiskState.
func (g *Guard) State() domain.RiskState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// CanTrade evaluates a prospective trade. FREEZE returns at once; the other
// checks all run and the most severe outcome wins, with REDUCE carrying the
// smallest notional any check would accept.
func (g *Guard) CanTrade(req domain.TradeRequest, snap domain.ExposureSnapshot) domain.RiskDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := &g.state
	dd := st.Drawdown

	// (a) global halt
	if st.Halted {
		return domain.RiskDecision{Action: domain.RiskFreeze, Reason: domain.SystemFreeze, Detail: "halted: " + st.HaltReason, Drawdown: dd}
	}
	// (b) hard ceiling on realized drawdown
	if d, breached := g.drawdownBreachLocked(); breached {
		return d
	}

	out := domain.RiskDecision{Action: domain.RiskAllow, Reason: domain.RiskLimitOK, Drawdown: dd}
	merge := func(d domain.RiskDecision) {
		switch {
		case d.Action.Severity() > out.Action.Severity():
			d.Drawdown = dd
			out = d
		case d.Action == domain.RiskReduce && out.Action == domain.RiskReduce && d.MaxNotional < out.MaxNotional:
			d.Drawdown = dd
			out = d
		}
	}

	// (c) warning band, realized then soft (realized + unrealized)
	warnAt := g.cfg.MaxDrawdown * g.cfg.WarnFraction
	if dd >= warnAt {
		merge(domain.RiskDecision{Action: domain.RiskWarn, Reason: domain.RiskLimitWarn,
			Detail: fmt.Sprintf("drawdown %.2f%% >= warn %.2f%%", dd*100, warnAt*100)})
	}
	soft := domain.Drawdown(st.PeakCapital, st.CurrentCapital+snap.UnrealizedPnL())
	switch {
	case soft >= g.cfg.MaxDrawdown:
		merge(g.reduceTo(req.Notional/2, domain.RiskDrawdownExceeded,
			fmt.Sprintf("soft drawdown %.2f%% >= ceiling, halving size", soft*100)))
	case soft >= warnAt:
		merge(domain.RiskDecision{Action: domain.RiskWarn, Reason: domain.RiskLimitWarn,
			Detail: fmt.Sprintf("soft drawdown %.2f%%", soft*100)})
	}

	// (d) position size
	capNotional := g.cfg.MaxPositionFraction * st.CurrentCapital
	switch {
	case capNotional < g.cfg.MinNotional:
		merge(domain.RiskDecision{Action: domain.RiskReduce, Reason: domain.RiskPositionTooLarge,
			Detail: fmt.Sprintf("position cap %.2f below minimum %.2f", capNotional, g.cfg.MinNotional)})
	case req.Notional < g.cfg.MinNotional:
		merge(domain.RiskDecision{Action: domain.RiskReduce, Reason: domain.RiskLimitExceeded,
			Detail: fmt.Sprintf("notional %.2f below minimum %.2f", req.Notional, g.cfg.MinNotional)})
	case req.Notional > capNotional:
		merge(g.reduceTo(capNotional, domain.RiskPositionTooLarge,
			fmt.Sprintf("notional %.2f > cap %.2f", req.Notional, capNotional)))
	}

	// (e) concentration, only meaningful with exposure elsewhere
	if g.cfg.MaxConcentration > 0 && g.cfg.MaxConcentration < 1 {
		inst := snap.InstrumentExposure(req.Signal.Instrument)
		others := snap.TotalExposure() - inst
		if others > 0 {
			after := inst + req.Notional
			share := after / (others + after)
			if share > g.cfg.MaxConcentration {
				room := g.cfg.MaxConcentration*others/(1-g.cfg.MaxConcentration) - inst
				merge(g.reduceTo(room, domain.RiskConcentration,
					fmt.Sprintf("%s would be %.1f%% of exposure", req.Signal.Instrument, share*100)))
			}
		}
	}

	// (f) trade rate
	if g.cfg.MaxTradesPerWindow > 0 {
		if n := g.tradesInWindowLocked(req.Signal.At); n >= g.cfg.MaxTradesPerWindow {
			merge(domain.RiskDecision{Action: domain.RiskReduce, Reason: domain.RiskRateLimit,
				Detail: fmt.Sprintf("%d trades in window, max %d", n, g.cfg.MaxTradesPerWindow)})
		}
	}
	return out
}

// reduceTo builds a REDUCE decision; sizes below the viable minimum become 0.
func (g *Guard) reduceTo(notional float64, reason domain.Reason, detail string) domain.RiskDecision {
	if notional < g.cfg.MinNotional || math.IsNaN(notional) {
		notional = 0
	}
	return domain.RiskDecision{Action: domain.RiskReduce, Reason: reason, Detail: detail, MaxNotional: notional}
}

func (g *Guard) drawdownBreachLocked() (domain.RiskDecision, bool) {
	st := &g.state
	if st.Drawdown < g.cfg.MaxDrawdown {
		return domain.RiskDecision{}, false
	}
	detail := fmt.Sprintf("drawdown %.2f%% >= ceiling %.2f%%", st.Drawdown*100, g.cfg.MaxDrawdown*100)
	g.haltLocked(detail)
	return domain.RiskDecision{Action: domain.RiskFreeze, Reason: domain.RiskDrawdownExceeded, Detail: detail, Drawdown: st.Drawdown}, true
}

// CheckDrawdown applies only the hard ceiling. The engine calls it after
// every close so a breach freezes trading without waiting for a signal.
func (g *Guard) CheckDrawdown() (domain.RiskDecision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Halted {
		return domain.RiskDecision{}, false
	}
	return g.drawdownBreachLocked()
}

func (g *Guard) tradesInWindowLocked(at time.Time) int {
	st := &g.state
	if st.WindowStart.IsZero() || g.cfg.Window <= 0 {
		return st.TradesInWindow
	}
	if !at.Truncate(g.cfg.Window).Equal(st.WindowStart) {
		return 0
	}
	return st.TradesInWindow
}

// RecordFill counts an opened position against the rate limit window.
func (g *Guard) RecordFill(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := &g.state
	if g.cfg.Window > 0 {
		start := at.Truncate(g.cfg.Window)
		if !start.Equal(st.WindowStart) {
			st.WindowStart = start
			st.TradesInWindow = 0
		}
	}
	st.TradesInWindow++
}

// Update folds a closed trade into capital, peak and drawdown.
func (g *Guard) Update(t domain.Trade) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := &g.state
	st.CurrentCapital += t.RealizedPnL
	st.RealizedPnL += t.RealizedPnL
	st.ClosedTrades++
	if st.CurrentCapital > st.PeakCapital {
		st.PeakCapital = st.CurrentCapital
	}
	st.Drawdown = domain.Drawdown(st.PeakCapital, st.CurrentCapital)
}

// Halt sets the global freeze flag.
func (g *Guard) Halt(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.haltLocked(reason)
}

func (g *Guard) haltLocked(reason string) {
	if g.state.Halted {
		return
	}
	g.state.Halted = true
	g.state.HaltReason = reason
	slog.Warn("risk: trading halted", "reason", reason, "drawdown", g.state.Drawdown)
}

// ClearHalt is the operator resume. The drawdown itself is not forgiven:
// if it is still above the ceiling the next check halts again.
func (g *Guard) ClearHalt() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Halted = false
	g.state.HaltReason = ""
}

// Assess is the per-tick check over open positions. It never mutates state.
func (g *Guard) Assess(snap domain.ExposureSnapshot) domain.RiskAssessment {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := g.state

	out := domain.RiskAssessment{Action: domain.RiskAllow, Reason: domain.RiskLimitOK}
	out.SoftDrawdown = domain.Drawdown(st.PeakCapital, st.CurrentCapital+snap.UnrealizedPnL())
	switch {
	case out.SoftDrawdown >= g.cfg.MaxDrawdown:
		out.Action, out.Reason = domain.RiskReduce, domain.RiskDrawdownExceeded
	case out.SoftDrawdown >= g.cfg.MaxDrawdown*g.cfg.WarnFraction:
		out.Action, out.Reason = domain.RiskWarn, domain.RiskLimitWarn
	}

	if g.cfg.MaxPositionLoss > 0 && st.CurrentCapital > 0 {
		limit := g.cfg.MaxPositionLoss * st.CurrentCapital
		for _, p := range snap.Positions {
			if -p.UnrealizedPnL > limit {
				out.Close = append(out.Close, p.ID)
			}
		}
	}
	if len(out.Close) > 0 {
		out.Action, out.Reason = domain.RiskClose, domain.RiskPositionLoss
	}
	return out
}
