package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/alejandrodnm/tradecore/internal/adapters/executor"
	"github.com/alejandrodnm/tradecore/internal/adapters/feed"
	"github.com/alejandrodnm/tradecore/internal/adapters/notify"
	"github.com/alejandrodnm/tradecore/internal/adapters/status"
	"github.com/alejandrodnm/tradecore/internal/application/backtest"
	"github.com/alejandrodnm/tradecore/internal/application/engine"
	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/decisionlog"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/events"
	"github.com/alejandrodnm/tradecore/internal/reasons"
	"github.com/alejandrodnm/tradecore/internal/risk"
	"github.com/alejandrodnm/tradecore/internal/sanitizer"
	"github.com/alejandrodnm/tradecore/internal/strategy"
)

// paperStatus es lo que sirve /status en modo paper.
type paperStatus struct {
	Engine       engine.Status                         `json:"engine"`
	Equity       float64                               `json:"equity"`
	Sanitizer    sanitizer.Stats                       `json:"sanitizer"`
	Events       map[domain.EventType]events.TypeStats `json:"events"`
	Subscribers  []events.SubscriberStats              `json:"subscribers"`
	BestReasons  []domain.ReasonStats                  `json:"best_reasons"`
	WorstReasons []domain.ReasonStats                  `json:"worst_reasons"`
}

// runPaper replays the feed through one engine with a durable decision log.
// Three lanes run together: the feed, the engine and the status server.
// Stopping with Ctrl+C leaves open positions in the log; the next run
// recovers them.
func runPaper(ctx context.Context, cfg *config.Config, opts runOptions) error {
	if cfg.Feed.Path == "" {
		return errors.New("runPaper: paper mode needs -feed")
	}
	hcfg, err := harnessConfig(cfg)
	if err != nil {
		return err
	}
	strat, err := strategy.NewRegistry().New(hcfg.StrategyName, hcfg.Strategy)
	if err != nil {
		return fmt.Errorf("runPaper: %w", err)
	}

	f, err := feed.Open(cfg.Feed.Path, cfg.Feed.Format)
	if err != nil {
		return fmt.Errorf("runPaper: %w", err)
	}
	defer f.Close()

	log, err := decisionlog.Open(cfg.DecisionLog.Path, decisionlog.Options{NoSync: cfg.DecisionLog.NoSync})
	if err != nil {
		return fmt.Errorf("runPaper: %w", err)
	}
	defer log.Close()

	reg := prometheus.NewRegistry()
	bus := events.New(busConfig(cfg), time.Now)
	defer bus.Close()
	metrics := events.NewMetrics(reg, bus)
	defer metrics.Close()

	tracker := reasons.New(cfg.Reasons.Retention)
	san := sanitizer.New(hcfg.Sanitizer)
	ecfg := hcfg.Engine
	ecfg.LiveReference = true
	eng := engine.New(ecfg, engine.Deps{
		Sanitizer: san,
		Strategy:  strat,
		Guard:     risk.New(hcfg.Risk, ecfg.InitialCapital),
		Executor:  executor.NewPaper(costmodel.New(hcfg.Costs)),
		Log:       log,
		Publisher: bus,
		Reasons:   tracker,
	})
	metrics.WatchOpenPositions(func() int { return eng.Status().OpenPositions })
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("runPaper: %w", err)
	}
	if opts.resume && eng.State() == domain.StateFrozen {
		if err := eng.Resume(ctx, "operator resume at startup"); err != nil {
			return fmt.Errorf("runPaper: %w", err)
		}
	}

	src := feed.NewPaced(feed.NewRebase(f, nil), cfg.Feed.RatePerSecond, cfg.Feed.Burst, nil)
	queue := feed.NewQueue(cfg.Feed.QueueSize)

	slog.Info("=== PAPER TRADING ===",
		"feed", cfg.Feed.Path,
		"rate", cfg.Feed.RatePerSecond,
		"log", cfg.DecisionLog.Path,
		"status", cfg.Status.Addr,
		"state", eng.State(),
	)

	started := time.Now().UTC()
	equity := []float64{eng.Equity()}
	exhausted := false

	g, gctx := errgroup.WithContext(ctx)
	laneCtx, stopLanes := context.WithCancel(gctx)
	defer stopLanes()

	g.Go(func() error {
		return queue.Pump(laneCtx, src)
	})
	g.Go(func() error {
		defer stopLanes()
		for {
			tick, err := queue.Next(laneCtx)
			if errors.Is(err, io.EOF) {
				exhausted = true
				return nil
			}
			if err != nil {
				return err
			}
			if err := eng.Process(laneCtx, tick); err != nil && !engine.Recoverable(err) {
				return err
			}
			equity = append(equity, eng.Equity())
		}
	})
	if cfg.Status.Addr != "" {
		srv := status.NewServer(cfg.Status.Addr, reg, func() any {
			return paperStatus{
				Engine:       eng.Status(),
				Equity:       eng.Equity(),
				Sanitizer:    san.Stats(),
				Events:       bus.Stats(),
				Subscribers:  bus.Subscribers(),
				BestReasons:  tracker.Best(3),
				WorstReasons: tracker.Worst(3),
			}
		})
		g.Go(func() error {
			return srv.Run(laneCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		slog.Error("paper lane failed", "err", err)
	}

	// ctx puede estar cancelado: el cierre se escribe igual
	closeCtx := context.WithoutCancel(ctx)
	if exhausted {
		if err := eng.CloseAll(closeCtx, domain.ExitEndOfData); err != nil {
			slog.Warn("close at end of feed failed", "err", err)
		}
		equity = append(equity, eng.Equity())
	}
	st := eng.Status()
	if stopErr := eng.Stop(closeCtx); stopErr != nil {
		slog.Error("engine stop failed", "err", stopErr)
	}

	rep := backtest.BuildReport(ecfg.InitialCapital, eng.Trades(), equity, tracker.Summary())
	rep.Ticks, rep.Skipped, rep.Rejected, rep.Freezes = st.Ticks, st.Skipped, st.Rejected, st.Freezes
	rep.Frozen = st.State == domain.StateFrozen
	rep.Start, rep.End = started, time.Now().UTC()

	console := notify.NewConsole()
	if nerr := console.NotifyReport(closeCtx, "paper "+filepath.Base(cfg.Feed.Path), rep); nerr != nil {
		slog.Warn("notifier error", "err", nerr)
	}
	if opts.trades > 0 {
		console.PrintTrades(eng.Trades(), opts.trades)
	}
	if opts.save {
		run := domain.RunRecord{
			ID:        uuid.NewString(),
			Mode:      "paper",
			Strategy:  strat.Name(),
			Label:     filepath.Base(cfg.Feed.Path),
			StartedAt: started,
			Report:    rep,
		}
		if serr := saveRun(closeCtx, cfg, run, eng.Trades()); serr != nil {
			slog.Warn("failed to save paper run", "err", serr)
		}
	}
	return err
}
