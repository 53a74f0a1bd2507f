// Package backtest replays recorded or synthetic ticks through a fresh
// engine and summarizes what happened.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
	"github.com/alejandrodnm/tradecore/internal/strategy"
)

const (
	// ctxCheckEvery is how many ticks run between context checks.
	ctxCheckEvery    = 1024
	defaultRetention = 10_000
)

// Config carries every component setting a run needs. Each run builds its
// components from scratch, so two runs never share state.
type Config struct {
	Engine       engine.Config
	Sanitizer    sanitizer.Config
	Costs        costmodel.Config
	Risk         risk.Config
	Strategy     strategy.Config
	StrategyName string
	Retention    int // reason tracker retention, 0 = defaultRetention
}

// DefaultConfig runs the liquidation hunter with reference settings.
func DefaultConfig() Config {
	return Config{
		Engine:       engine.DefaultConfig(),
		Sanitizer:    sanitizer.DefaultConfig(),
		Costs:        costmodel.DefaultConfig(),
		Risk:         risk.DefaultConfig(),
		Strategy:     strategy.DefaultConfig(),
		StrategyName: strategy.LiquidationHunterName,
	}
}

// Result is everything a run produced. Report is derived from the rest.
type Result struct {
	Report   domain.PerformanceReport
	Trades   []domain.Trade
	Equity   []float64
	Status   engine.Status
	Log      *decisionlog.MemoryLog
	Strategy string
}

// Harness runs backtests. It is safe to call Run concurrently.
type Harness struct {
	cfg       Config
	registry  strategy.Registry
	publisher ports.Publisher
}

// New creates a Harness. registry resolves cfg.StrategyName.
func New(cfg Config, registry strategy.Registry) *Harness {
	if registry == nil {
		registry = strategy.NewRegistry()
	}
	return &Harness{cfg: cfg, registry: registry}
}

// WithPublisher attaches a publisher to every engine the harness builds.
func (h *Harness) WithPublisher(p ports.Publisher) *Harness {
	h.publisher = p
	return h
}

// Run replays ticks in order and returns the performance report.
func (h *Harness) Run(ctx context.Context, ticks []domain.Tick, initialCapital float64) (domain.PerformanceReport, error) {
	res, err := h.Execute(ctx, ticks, initialCapital)
	if err != nil {
		return domain.PerformanceReport{}, err
	}
	return res.Report, nil
}

// Execute is Run returning the full result. Faults on a single tick are
// logged by the engine and the replay continues; any other engine error
// aborts the run.
func (h *Harness) Execute(ctx context.Context, ticks []domain.Tick, initialCapital float64) (*Result, error) {
	if len(ticks) == 0 {
		return nil, errors.New("backtest.Execute: no ticks")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("backtest.Execute: initial capital %.2f must be > 0", initialCapital)
	}

	strat, err := h.registry.New(h.cfg.StrategyName, h.cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("backtest.Execute: %w", err)
	}

	// La hora de la simulación es la del primer tick: nada del reloj real
	// llega a los datos del run.
	start := ticks[0].Timestamp
	clock := func() time.Time { return start }

	ecfg := h.cfg.Engine
	ecfg.InitialCapital = initialCapital
	ecfg.LiveReference = false

	retention := h.cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	log := decisionlog.NewMemory(clock)
	tracker := reasons.New(retention)
	eng := engine.New(ecfg, engine.Deps{
		Sanitizer: sanitizer.New(h.cfg.Sanitizer),
		Strategy:  strat,
		Guard:     risk.New(h.cfg.Risk, initialCapital),
		Executor:  executor.NewPaper(costmodel.New(h.cfg.Costs)),
		Log:       log,
		Publisher: h.publisher,
		Reasons:   tracker,
		Clock:     clock,
	})

	if err := eng.Start(ctx); err != nil {
		return nil, fmt.Errorf("backtest.Execute: %w", err)
	}

	equity := make([]float64, 0, len(ticks)+2)
	equity = append(equity, initialCapital)
	for i, tick := range ticks {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("backtest.Execute: tick %d: %w", i, err)
			}
		}
		if err := eng.Process(ctx, tick); err != nil && !engine.Recoverable(err) {
			return nil, fmt.Errorf("backtest.Execute: tick %d: %w", i, err)
		}
		equity = append(equity, eng.Equity())
	}

	if err := eng.CloseAll(ctx, domain.ExitEndOfData); err != nil {
		return nil, fmt.Errorf("backtest.Execute: %w", err)
	}
	equity = append(equity, eng.Equity())

	status := eng.Status()
	if err := eng.Stop(ctx); err != nil {
		return nil, fmt.Errorf("backtest.Execute: %w", err)
	}

	res := &Result{
		Trades:   eng.Trades(),
		Equity:   equity,
		Status:   status,
		Log:      log,
		Strategy: strat.Name(),
	}
	res.Report = BuildReport(initialCapital, res.Trades, equity, tracker.Summary())
	res.Report.Ticks = len(ticks)
	res.Report.Skipped = status.Skipped
	res.Report.Rejected = status.Rejected
	res.Report.Freezes = status.Freezes
	res.Report.Frozen = status.State == domain.StateFrozen
	res.Report.Start = start
	res.Report.End = ticks[len(ticks)-1].Timestamp

	slog.Info("backtest: run complete",
		"strategy", res.Strategy,
		"ticks", len(ticks),
		"trades", res.Report.Trades,
		"win_rate", fmt.Sprintf("%.1f%%", res.Report.WinRate*100),
		"pnl", fmt.Sprintf("%.2f", res.Report.TotalPnL),
		"max_dd", fmt.Sprintf("%.2f%%", res.Report.MaxDrawdown*100),
		"frozen", res.Report.Frozen,
	)
	return res, nil
}

// Split sizes the walk-forward ranges as fractions of the data. The test
// range gets whatever remains.
type Split struct {
	Train    float64
	Validate float64
}

// WalkForward runs the same configuration over consecutive train, validate
// and test ranges. Each range starts from initialCapital with a fresh engine.
func (h *Harness) WalkForward(ctx context.Context, ticks []domain.Tick, initialCapital float64, split Split) (domain.WalkForwardReport, error) {
	if split.Train <= 0 || split.Validate <= 0 || split.Train+split.Validate >= 1 {
		return domain.WalkForwardReport{}, fmt.Errorf("backtest.WalkForward: split %.2f/%.2f leaves no test range", split.Train, split.Validate)
	}
	n := len(ticks)
	trainEnd := int(float64(n) * split.Train)
	validEnd := int(float64(n) * (split.Train + split.Validate))
	if trainEnd == 0 || validEnd == trainEnd || validEnd == n {
		return domain.WalkForwardReport{}, fmt.Errorf("backtest.WalkForward: %d ticks too few for split", n)
	}

	var wf domain.WalkForwardReport
	ranges := []struct {
		name  string
		ticks []domain.Tick
		out   *domain.PerformanceReport
	}{
		{"train", ticks[:trainEnd], &wf.Train},
		{"validate", ticks[trainEnd:validEnd], &wf.Validate},
		{"test", ticks[validEnd:], &wf.Test},
	}
	for _, r := range ranges {
		slog.Info("backtest: walk-forward range", "range", r.name, "ticks", len(r.ticks))
		rep, err := h.Run(ctx, r.ticks, initialCapital)
		if err != nil {
			return domain.WalkForwardReport{}, fmt.Errorf("backtest.WalkForward: %s: %w", r.name, err)
		}
		*r.out = rep
	}
	return wf, nil
}
