package engine_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/adapters/executor"
	"github.com/alejandrodnm/tradecore/internal/application/engine"
	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/decisionlog"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"github.com/alejandrodnm/tradecore/internal/reasons"
	"github.com/alejandrodnm/tradecore/internal/risk"
	"github.com/alejandrodnm/tradecore/internal/sanitizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const btc = "BTC-USDT"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tk(sec int, px float64) domain.Tick {
	return domain.Tick{Instrument: btc, Timestamp: t0.Add(time.Duration(sec) * time.Second), Last: px, Volume: 10}
}

// stub proposes a full-confidence long whenever want returns true.
type stub struct {
	want  func(call int) bool
	panic int
	calls int
}

func (s *stub) Name() string { return "stub" }
func (s *stub) Lookback() int { return 4 }

func (s *stub) Evaluate(tick domain.Tick, history ports.TickHistory) (*domain.Signal, error) {
	s.calls++
	if s.calls == s.panic {
		panic("boom")
	}
	if s.want == nil || !s.want(s.calls) {
		return nil, nil
	}
	return &domain.Signal{
		Instrument: tick.Instrument,
		Direction:  domain.Long,
		Price:      tick.Price(),
		Confidence: 1,
		Reason:     domain.SignalStrong,
		Strategy:   "stub",
	}, nil
}

func always(int) bool { return true }
func firstOnly(n int) bool { return n == 1 }

type fixture struct {
	eng     *engine.Engine
	guard   *risk.Guard
	log     ports.DecisionLog
	strat   *stub
	reasons *reasons.Tracker
	events  *recorder
}

// recorder keeps every published event in order.
type recorder struct {
	events []domain.Event
}

func (r *recorder) Publish(ev domain.Event) { r.events = append(r.events, ev) }

func (r *recorder) of(typ domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newFixture(t *testing.T, strat *stub, log ports.DecisionLog) *fixture {
	t.Helper()
	if log == nil {
		log = decisionlog.NewMemory(nil)
	}
	scfg := sanitizer.DefaultConfig()
	scfg.FreshnessWindow = 2 * time.Second

	cfg := engine.DefaultConfig()
	cfg.PositionFraction = 0.2
	cfg.RunID = "test-run"

	f := &fixture{
		guard:   risk.New(risk.DefaultConfig(), cfg.InitialCapital),
		log:     log,
		strat:   strat,
		reasons: reasons.New(100),
		events:  &recorder{},
	}
	f.eng = engine.New(cfg, engine.Deps{
		Sanitizer: sanitizer.New(scfg),
		Strategy:  strat,
		Guard:     f.guard,
		Executor:  executor.NewPaper(costmodel.New(costmodel.DefaultConfig())),
		Log:       log,
		Reasons:   f.reasons,
		Publisher: f.events,
	})
	require.NoError(t, f.eng.Start(context.Background()))
	return f
}

func (f *fixture) process(t *testing.T, ticks ...domain.Tick) {
	t.Helper()
	for _, tick := range ticks {
		require.NoError(t, f.eng.Process(context.Background(), tick))
	}
}

func (f *fixture) entries(t *testing.T, cat domain.LogCategory) []domain.LogEntry {
	t.Helper()
	var out []domain.LogEntry
	err := f.log.Replay(context.Background(), 0, func(e domain.LogEntry) error {
		if e.Category == cat {
			out = append(out, e)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) decisions(t *testing.T) []domain.RiskDecisionRecord {
	t.Helper()
	var out []domain.RiskDecisionRecord
	for _, e := range f.entries(t, domain.LogRiskDecision) {
		var r domain.RiskDecisionRecord
		require.NoError(t, e.Decode(&r))
		out = append(out, r)
	}
	return out
}

func unmarked(ps []domain.Position) []domain.Position {
	out := make([]domain.Position, len(ps))
	for i, p := range ps {
		p.MarkPrice, p.MarkedAt, p.UnrealizedPnL = 0, time.Time{}, 0
		out[i] = p
	}
	return out
}

func TestEngine_StartLogsRunAndRuns(t *testing.T) {
	f := newFixture(t, &stub{}, nil)
	assert.Equal(t, domain.StateRunning, f.eng.State())

	runs := f.entries(t, domain.LogRunStarted)
	require.Len(t, runs, 1)
	var rs domain.RunStarted
	require.NoError(t, runs[0].Decode(&rs))
	assert.Equal(t, "test-run", rs.RunID)
	assert.Equal(t, "stub", rs.Strategy)
}

func TestEngine_OpensSizedPosition(t *testing.T) {
	f := newFixture(t, &stub{want: firstOnly}, nil)
	f.process(t, tk(0, 100))

	ps := f.eng.Positions()
	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, domain.Long, p.Direction)
	assert.InDelta(t, 2000, p.Notional(), 1)
	assert.GreaterOrEqual(t, p.EntryPrice, 100.0)
	assert.InDelta(t, p.EntryPrice*1.02, p.TakeProfit, 1e-9)
	assert.InDelta(t, p.EntryPrice*0.99, p.StopLoss, 1e-9)
	assert.Positive(t, p.EntryFee)
	assert.Equal(t, 1, f.guard.State().TradesInWindow)
}

func TestEngine_ScenarioE_SecondSignalRejectedWhilePositionOpen(t *testing.T) {
	f := newFixture(t, &stub{want: always}, nil)
	f.process(t, tk(0, 100), tk(1, 100), tk(2, 100))

	require.Len(t, f.eng.Positions(), 1)

	var blocked int
	for _, r := range f.decisions(t) {
		if r.Decision.Reason == domain.RiskPositionOpen {
			blocked++
			assert.False(t, r.Decision.Action.Permits())
		}
	}
	assert.Equal(t, 2, blocked)
	assert.Equal(t, 2, f.reasons.Stats(domain.RiskPositionOpen).Blocked)
	assert.Len(t, f.entries(t, domain.LogPositionOpened), 1)
}

func TestEngine_TakeProfitClosesTrade(t *testing.T) {
	f := newFixture(t, &stub{want: firstOnly}, nil)
	f.process(t, tk(0, 100), tk(1, 101), tk(2, 103))

	assert.Empty(t, f.eng.Positions())
	trades := f.eng.Trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, domain.ExitTakeProfit, tr.ExitReason)
	assert.True(t, tr.Won())
	assert.InDelta(t, tr.GrossPnL-tr.Fees, tr.RealizedPnL, 1e-9)
	assert.Equal(t, 2*time.Second, tr.Duration)
	assert.InDelta(t, 10_000+tr.RealizedPnL, f.guard.State().CurrentCapital, 1e-9)
	assert.Equal(t, 1, f.reasons.Stats(domain.SignalStrong).Wins)
}

func TestEngine_ScenarioC_RealizedDrawdownFreezes(t *testing.T) {
	f := newFixture(t, &stub{want: always}, nil)
	f.process(t, tk(0, 100))
	// gap through the stop: -80% on a 2,000 notional is about -1,600
	f.process(t, tk(1, 20))

	trades := f.eng.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitStopLoss, trades[0].ExitReason)
	assert.InDelta(t, -1600, trades[0].RealizedPnL, 5)

	st := f.guard.State()
	assert.Greater(t, st.Drawdown, 0.15)
	assert.True(t, st.Halted)
	assert.Equal(t, domain.StateFrozen, f.eng.State())

	d := f.guard.CanTrade(domain.TradeRequest{Signal: domain.Signal{Instrument: btc}, Notional: 100}, domain.ExposureSnapshot{})
	assert.Equal(t, domain.RiskFreeze, d.Action)

	// frozen: the strategy keeps signalling but nothing opens
	f.process(t, tk(2, 20), tk(3, 20))
	assert.Empty(t, f.eng.Positions())

	var freezes int
	for _, r := range f.decisions(t) {
		if r.Decision.Action == domain.RiskFreeze {
			freezes++
			assert.Equal(t, domain.RiskDrawdownExceeded, r.Decision.Reason)
		}
	}
	assert.Equal(t, 1, freezes)
}

func TestEngine_LatencyFreezeInSameTick(t *testing.T) {
	f := newFixture(t, &stub{want: firstOnly}, nil)
	f.process(t, tk(0, 100))
	require.Len(t, f.eng.Positions(), 1)

	late := tk(1, 100)
	late.ReceivedAt = late.Timestamp.Add(5 * time.Second)
	f.process(t, late)

	assert.Equal(t, domain.StateFrozen, f.eng.State())
	st := f.eng.Status()
	assert.Equal(t, domain.ErrorLatencyHigh, st.LastReason)
	assert.Equal(t, 1, st.Freezes)
	assert.Zero(t, st.Skipped)
	callsAtFreeze := f.strat.calls

	// positions still exit while frozen, but no new decisions are taken
	f.process(t, tk(2, 103))
	assert.Empty(t, f.eng.Positions())
	assert.Len(t, f.eng.Trades(), 1)
	assert.Equal(t, callsAtFreeze, f.strat.calls)
	assert.Equal(t, domain.StateFrozen, f.eng.State())

	require.NoError(t, f.eng.Resume(context.Background(), "operator"))
	assert.Equal(t, domain.StateRunning, f.eng.State())
	f.process(t, tk(3, 103))
	assert.Equal(t, callsAtFreeze+1, f.strat.calls)
}

func TestEngine_ResumeRequiresFrozen(t *testing.T) {
	f := newFixture(t, &stub{}, nil)
	assert.Error(t, f.eng.Resume(context.Background(), "operator"))
}

func TestEngine_SpreadSkipTouchesNothing(t *testing.T) {
	f := newFixture(t, &stub{want: always}, nil)
	wide := tk(0, 100)
	wide.Bid, wide.Ask = 90, 110
	f.process(t, wide)

	assert.Zero(t, f.strat.calls)
	assert.Empty(t, f.eng.Positions())
	assert.Equal(t, domain.StateRunning, f.eng.State())
	st := f.eng.Status()
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, domain.MarketSpreadWide, st.LastReason)
	assert.Len(t, f.entries(t, domain.LogTickRejected), 1)
}

func TestEngine_ScenarioB_StaleTickSkippedThenOutOfSequence(t *testing.T) {
	f := newFixture(t, &stub{want: firstOnly}, nil)
	f.process(t, tk(10, 100))
	before := f.eng.Positions()
	require.Len(t, before, 1)

	// 10s older than the previous tick, 2s freshness window: SKIP, and the
	// crash price never reaches the position
	f.process(t, tk(0, 50))
	assert.Equal(t, before, f.eng.Positions())
	assert.Empty(t, f.eng.Trades())
	assert.Equal(t, 1, f.eng.Status().Skipped)

	// within the window but still older: sequencing error
	err := f.eng.Process(context.Background(), tk(9, 50))
	require.ErrorIs(t, err, domain.ErrOutOfSequence)
	assert.Equal(t, before, f.eng.Positions())
	assert.Equal(t, domain.StateRunning, f.eng.State())
}

func TestEngine_StrategyPanicIsSystemFault(t *testing.T) {
	f := newFixture(t, &stub{want: firstOnly, panic: 2}, nil)
	f.process(t, tk(0, 100))
	before := f.eng.Positions()

	err := f.eng.Process(context.Background(), tk(1, 100.5))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSystemFault)
	var fe *domain.FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "entry", fe.Stage)

	st := f.eng.Status()
	assert.Equal(t, domain.StateRunning, st.State)
	assert.Equal(t, 1, st.Faults)
	assert.Contains(t, st.LastError, "boom")
	assert.Len(t, f.eng.Positions(), len(before))
	assert.Len(t, f.entries(t, domain.LogError), 1)

	f.process(t, tk(2, 100.5))
}

// failingLog refuses one category, to check that nothing is committed
// ahead of the log.
type failingLog struct {
	*decisionlog.MemoryLog
	refuse domain.LogCategory
}

func (l *failingLog) Append(ctx context.Context, cat domain.LogCategory, payload any) (uint64, error) {
	if cat == l.refuse {
		return 0, errors.New("disk full")
	}
	return l.MemoryLog.Append(ctx, cat, payload)
}

func TestEngine_WriteAheadNoPositionWithoutLogEntry(t *testing.T) {
	log := &failingLog{MemoryLog: decisionlog.NewMemory(nil), refuse: domain.LogPositionOpened}
	f := newFixture(t, &stub{want: firstOnly}, log)

	err := f.eng.Process(context.Background(), tk(0, 100))
	require.ErrorIs(t, err, domain.ErrSystemFault)
	assert.Empty(t, f.eng.Positions())
	assert.Zero(t, f.guard.State().TradesInWindow)
}

func TestEngine_RejectedTickAnnouncedOnlyAfterLogEntry(t *testing.T) {
	log := &failingLog{MemoryLog: decisionlog.NewMemory(nil), refuse: domain.LogTickRejected}
	f := newFixture(t, &stub{want: always}, log)

	wide := tk(0, 100)
	wide.Bid, wide.Ask = 90, 110
	require.NoError(t, f.eng.Process(context.Background(), wide))

	assert.Empty(t, f.events.of(domain.EventTickReceived))
	require.Len(t, f.events.of(domain.EventError), 1)
	require.Len(t, f.entries(t, domain.LogError), 1)
	assert.Equal(t, 1, f.eng.Status().Skipped)

	f.process(t, tk(1, 100))
	assert.Equal(t, 1, f.strat.calls)
	assert.Len(t, f.eng.Positions(), 1)
}

func TestEngine_RejectedTickEventCarriesLogSeq(t *testing.T) {
	f := newFixture(t, &stub{}, nil)
	wide := tk(0, 100)
	wide.Bid, wide.Ask = 90, 110
	f.process(t, wide)

	entries := f.entries(t, domain.LogTickRejected)
	require.Len(t, entries, 1)
	evs := f.events.of(domain.EventTickReceived)
	require.Len(t, evs, 1)
	assert.Equal(t, entries[0].Seq, evs[0].Seq)
}

func TestEngine_NonFiniteTickRejectedAndRunContinues(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	log, err := decisionlog.Open(path, decisionlog.Options{NoSync: true})
	require.NoError(t, err)
	f := newFixture(t, &stub{want: always}, log)

	nanVolume := tk(0, 100)
	nanVolume.Volume = math.NaN()
	require.NoError(t, f.eng.Process(ctx, nanVolume))
	assert.Equal(t, 1, f.eng.Status().Rejected)

	infAsk := tk(1, 100)
	infAsk.Bid, infAsk.Ask = 99.9, math.Inf(1)
	require.NoError(t, f.eng.Process(ctx, infAsk))
	st := f.eng.Status()
	assert.Equal(t, 2, st.Rejected)
	assert.Zero(t, st.Faults)
	assert.Empty(t, st.LastError)

	entries := f.entries(t, domain.LogTickRejected)
	require.Len(t, entries, 2)
	var first, second domain.TickRejected
	require.NoError(t, entries[0].Decode(&first))
	require.NoError(t, entries[1].Decode(&second))
	assert.Equal(t, "volume=NaN", first.NonFinite)
	assert.Zero(t, first.Tick.Volume)
	assert.Equal(t, "ask=+Inf", second.NonFinite)
	assert.Equal(t, 99.9, second.Tick.Bid)
	assert.Equal(t, domain.VerdictReject, second.Result.Verdict)

	f.process(t, tk(2, 100))
	assert.Equal(t, 1, f.strat.calls)
	assert.Len(t, f.eng.Positions(), 1)

	require.NoError(t, log.Close())
	n, err := decisionlog.Verify(path)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestEngine_ProcessWhenStopped(t *testing.T) {
	f := newFixture(t, &stub{}, nil)
	require.NoError(t, f.eng.Stop(context.Background()))
	err := f.eng.Process(context.Background(), tk(0, 100))
	assert.ErrorIs(t, err, domain.ErrEngineStopped)
}

func TestEngine_ReplayRestoresState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")

	log, err := decisionlog.Open(path, decisionlog.Options{NoSync: true})
	require.NoError(t, err)
	a := newFixture(t, &stub{want: always}, log)
	// open, take profit and reopen, hold
	a.process(t, tk(0, 100), tk(1, 103), tk(2, 103.5), tk(3, 103.2))
	require.Len(t, a.eng.Trades(), 1)
	require.Len(t, a.eng.Positions(), 1)
	require.NoError(t, a.eng.Stop(ctx))
	require.NoError(t, log.Close())

	log2, err := decisionlog.Open(path, decisionlog.Options{NoSync: true})
	require.NoError(t, err)
	defer log2.Close()
	b := newFixture(t, &stub{want: always}, log2)

	assert.Equal(t, domain.StateRunning, b.eng.State())
	assert.Equal(t, unmarked(a.eng.Positions()), unmarked(b.eng.Positions()))
	assert.Equal(t, a.eng.Trades(), b.eng.Trades())
	assert.Equal(t, a.guard.State(), b.guard.State())
	assert.Len(t, b.entries(t, domain.LogRunStarted), 1)

	// the restored engine continues the sequence and the ID series
	err = b.eng.Process(ctx, tk(2, 103))
	assert.ErrorIs(t, err, domain.ErrOutOfSequence)
	b.process(t, tk(4, 106), tk(5, 106))
	trades := b.eng.Trades()
	require.Len(t, trades, 2)
	ps := b.eng.Positions()
	require.Len(t, ps, 1)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
	for _, tr := range trades {
		assert.NotEqual(t, tr.ID, ps[0].ID)
	}
}

func TestEngine_FrozenSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	log := decisionlog.NewMemory(nil)
	a := newFixture(t, &stub{}, log)
	late := tk(0, 100)
	late.ReceivedAt = late.Timestamp.Add(time.Minute)
	a.process(t, late)
	require.Equal(t, domain.StateFrozen, a.eng.State())
	require.NoError(t, a.eng.Stop(ctx))

	b := newFixture(t, &stub{}, log)
	assert.Equal(t, domain.StateFrozen, b.eng.State())
	require.NoError(t, b.eng.Resume(ctx, "checked feed"))
	assert.Equal(t, domain.StateRunning, b.eng.State())
}

func TestEngine_CloseAllAtEndOfData(t *testing.T) {
	f := newFixture(t, &stub{want: firstOnly}, nil)
	f.process(t, tk(0, 100), tk(1, 100.5))
	require.NoError(t, f.eng.CloseAll(context.Background(), domain.ExitEndOfData))

	assert.Empty(t, f.eng.Positions())
	trades := f.eng.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitEndOfData, trades[0].ExitReason)
	assert.Equal(t, t0.Add(time.Second), trades[0].ClosedAt)
}
