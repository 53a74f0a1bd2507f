// Package engine orchestrates the per-tick pipeline: sanitize, mark, exit,
// evaluate, risk-gate, fill, log and publish. One Engine owns its positions
// and risk state; nothing else mutates them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/decisionlog"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"github.com/alejandrodnm/tradecore/internal/reasons"
	"github.com/alejandrodnm/tradecore/internal/ringbuf"
	"github.com/alejandrodnm/tradecore/internal/risk"
	"github.com/alejandrodnm/tradecore/internal/sanitizer"
	"github.com/google/uuid"
)

// positionNamespace seeds deterministic position IDs.
var positionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tradecore/position"))

// Config holds sizing and exit settings.
type Config struct {
	InitialCapital float64
	// PositionFraction of capital is committed at confidence 1; a signal
	// of confidence c gets PositionFraction × (0.5 + 0.5c).
	PositionFraction          float64
	MaxPositionsPerInstrument int
	TakeProfitPct             float64
	StopLossPct               float64
	MaxHold                   time.Duration // 0 disables the time stop
	OrderType                 domain.OrderType
	HistorySize               int // 0 = strategy lookback
	// LiveReference makes the sanitizer measure staleness against the
	// wall clock instead of the newest tick seen.
	LiveReference bool
	// RunID is written to RUN_STARTED on a fresh log. Empty = random.
	RunID string
}

// DefaultConfig returns the reference sizing.
func DefaultConfig() Config {
	return Config{
		InitialCapital:            10_000,
		PositionFraction:          0.1,
		MaxPositionsPerInstrument: 1,
		TakeProfitPct:             0.02,
		StopLossPct:               0.01,
		OrderType:                 domain.Market,
	}
}

// Deps are the collaborators an Engine is built from. Publisher and Reasons
// are optional.
type Deps struct {
	Sanitizer *sanitizer.Sanitizer
	Strategy  ports.Strategy
	Guard     *risk.Guard
	Executor  ports.OrderExecutor
	Log       ports.DecisionLog
	Publisher ports.Publisher
	Reasons   *reasons.Tracker
	Clock     func() time.Time
}

// Status is the operator view of the engine.
type Status struct {
	State         domain.EngineState `json:"state"`
	Strategy      string             `json:"strategy"`
	LastError     string             `json:"last_error,omitempty"`
	LastReason    domain.Reason      `json:"last_reason,omitempty"`
	OpenPositions int                `json:"open_positions"`
	Trades        int                `json:"trades"`
	Ticks         int                `json:"ticks"`
	Skipped       int                `json:"skipped"`
	Rejected      int                `json:"rejected"`
	Freezes       int                `json:"freezes"`
	Faults        int                `json:"faults"`
	LastTick      time.Time          `json:"last_tick"`
	LastSeq       uint64             `json:"last_seq"`
	Risk          domain.RiskState   `json:"risk"`
}

// Engine is the orchestration state machine. All methods are safe for
// concurrent use; ticks are processed strictly one at a time.
type Engine struct {
	cfg       Config
	sanitizer *sanitizer.Sanitizer
	strategy  ports.Strategy
	guard     *risk.Guard
	executor  ports.OrderExecutor
	log       ports.DecisionLog
	publisher ports.Publisher
	reasons   *reasons.Tracker
	clock     func() time.Time

	mu        sync.Mutex
	state     domain.EngineState
	positions map[string]domain.Position
	trades    []domain.Trade
	history   map[string]*ringbuf.Ring[domain.Tick]
	lastTicks map[string]domain.Tick
	opened    int
	lastTick  time.Time

	ticks, skipped, rejected, freezes, faults int
	lastErr                          string
	lastReason                       domain.Reason
}

// New creates a stopped Engine. Call Start before Process.
func New(cfg Config, deps Deps) *Engine {
	if cfg.MaxPositionsPerInstrument <= 0 {
		cfg.MaxPositionsPerInstrument = 1
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.Market
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:       cfg,
		sanitizer: deps.Sanitizer,
		strategy:  deps.Strategy,
		guard:     deps.Guard,
		executor:  deps.Executor,
		log:       deps.Log,
		publisher: deps.Publisher,
		reasons:   deps.Reasons,
		clock:     clock,
		state:     domain.StateStopped,
		positions: make(map[string]domain.Position),
		history:   make(map[string]*ringbuf.Ring[domain.Tick]),
		lastTicks: make(map[string]domain.Tick),
	}
}

// Start rebuilds state from the decision log and starts accepting ticks.
// A fresh log gets a RUN_STARTED entry. A log that ended frozen restarts
// frozen; only Resume clears it.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateStopped {
		return nil
	}

	rec, err := decisionlog.Recover(ctx, e.log, e.guard)
	if err != nil {
		return fmt.Errorf("engine.Start: %w", err)
	}

	if rec.Entries == 0 {
		runID := e.cfg.RunID
		if runID == "" {
			runID = uuid.NewString()
		}
		e.guard.Reset(e.cfg.InitialCapital)
		if _, err := e.log.Append(ctx, domain.LogRunStarted, domain.RunStarted{
			RunID:          runID,
			InitialCapital: e.cfg.InitialCapital,
			Strategy:       e.strategy.Name(),
			At:             e.clock(),
		}); err != nil {
			return fmt.Errorf("engine.Start: run started: %w", err)
		}
	} else {
		e.restore(rec)
	}

	to, reason := domain.StateRunning, domain.SystemStartup
	if rec.Frozen {
		to, reason = domain.StateFrozen, domain.SystemFreeze
	}
	if err := e.transition(ctx, to, reason, "start"); err != nil {
		return fmt.Errorf("engine.Start: %w", err)
	}

	slog.Info("engine: started",
		"strategy", e.strategy.Name(),
		"state", e.state,
		"open_positions", len(e.positions),
		"trades", len(e.trades),
		"capital", e.guard.State().CurrentCapital,
	)
	return nil
}

func (e *Engine) restore(rec *decisionlog.Recovered) {
	for id, p := range rec.Positions {
		e.positions[id] = p
	}
	e.trades = append(e.trades, rec.Trades...)
	e.opened = rec.Opened
	e.lastTick = rec.LastTick
	if e.reasons != nil {
		for _, t := range rec.Trades {
			e.record(t.Reason, domain.OutcomeFromTrade(t), t.ClosedAt)
		}
	}
}

// Stop logs the shutdown and flushes the decision log. The log itself is
// closed by its owner.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == domain.StateStopped {
		return nil
	}
	if err := e.transition(ctx, domain.StateStopped, domain.SystemShutdown, "stop"); err != nil {
		return fmt.Errorf("engine.Stop: %w", err)
	}
	if err := e.log.Sync(); err != nil {
		return fmt.Errorf("engine.Stop: sync log: %w", err)
	}
	slog.Info("engine: stopped", "trades", len(e.trades), "open_positions", len(e.positions))
	return nil
}

// Resume is the operator action that clears a freeze. The risk halt is
// lifted too, but a drawdown still above the ceiling freezes again on the
// next check.
func (e *Engine) Resume(ctx context.Context, detail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != domain.StateFrozen {
		return fmt.Errorf("engine.Resume: state is %s, not %s", e.state, domain.StateFrozen)
	}
	if err := e.transition(ctx, domain.StateRunning, domain.SystemResume, detail); err != nil {
		return fmt.Errorf("engine.Resume: %w", err)
	}
	e.guard.ClearHalt()
	return nil
}

// transition logs, then applies, then publishes a state change.
func (e *Engine) transition(ctx context.Context, to domain.EngineState, reason domain.Reason, detail string) error {
	if e.state == to {
		return nil
	}
	sc := domain.StateChange{From: e.state, To: to, Reason: reason, Detail: detail, At: e.clock()}
	seq, err := e.log.Append(ctx, domain.LogStateChange, sc)
	if err != nil {
		return fmt.Errorf("log state change: %w", err)
	}
	e.state = to
	e.lastReason = reason

	level := slog.LevelInfo
	if to == domain.StateFrozen {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "engine: state change", "from", sc.From, "to", to, "reason", reason, "detail", detail)
	e.publish(domain.EventStateChange, "", seq, reason, sc)
	return nil
}

// State returns the current state.
func (e *Engine) State() domain.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the operator view.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:         e.state,
		Strategy:      e.strategy.Name(),
		LastError:     e.lastErr,
		LastReason:    e.lastReason,
		OpenPositions: len(e.positions),
		Trades:        len(e.trades),
		Ticks:         e.ticks,
		Skipped:       e.skipped,
		Rejected:      e.rejected,
		Freezes:       e.freezes,
		Faults:        e.faults,
		LastTick:      e.lastTick,
		LastSeq:       e.log.LastSeq(),
		Risk:          e.guard.State(),
	}
}

// Trades returns the closed trades in closing order.
func (e *Engine) Trades() []domain.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Positions returns the open positions ordered by open time.
func (e *Engine) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sortedPositions()
}

// Equity is realized capital plus the unrealized P&L of open positions.
func (e *Engine) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	eq := e.guard.State().CurrentCapital
	for _, p := range e.sortedPositions() {
		eq += p.UnrealizedPnL
	}
	return eq
}

func (e *Engine) sortedPositions() []domain.Position {
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (e *Engine) snapshot() domain.ExposureSnapshot {
	return domain.ExposureSnapshot{Positions: e.sortedPositions()}
}

func (e *Engine) publish(typ domain.EventType, instrument string, seq uint64, reason domain.Reason, payload any) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(domain.Event{
		Type:       typ,
		Instrument: instrument,
		Seq:        seq,
		Reason:     reason,
		CreatedAt:  time.Now(),
		Payload:    payload,
	})
}

func (e *Engine) record(code domain.Reason, outcome domain.Outcome, at time.Time) {
	if e.reasons == nil || code == "" {
		return
	}
	if err := e.reasons.Record(code, outcome, at); err != nil {
		slog.Warn("engine: reason not recorded", "reason", code, "err", err)
	}
}

func (e *Engine) historyFor(instrument string) *ringbuf.Ring[domain.Tick] {
	h, ok := e.history[instrument]
	if !ok {
		h = ringbuf.New[domain.Tick](max(e.cfg.HistorySize, e.strategy.Lookback(), 1))
		e.history[instrument] = h
	}
	return h
}

func (e *Engine) nextPositionID(instrument string) string {
	return uuid.NewSHA1(positionNamespace, []byte(fmt.Sprintf("%s/%d", instrument, e.opened+1))).String()
}
