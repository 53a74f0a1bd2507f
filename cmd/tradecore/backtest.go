package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/alejandrodnm/tradecore/internal/adapters/feed"
	"github.com/alejandrodnm/tradecore/internal/adapters/notify"
	"github.com/alejandrodnm/tradecore/internal/adapters/storage"
	"github.com/alejandrodnm/tradecore/internal/application/backtest"
	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/strategy"
)

// loadTicks lee -feed o genera datos sintéticos. Devuelve también la
// etiqueta con la que se guarda el run.
func loadTicks(ctx context.Context, cfg *config.Config) ([]domain.Tick, string, error) {
	if cfg.Feed.Path == "" {
		sc := syntheticConfig(cfg)
		slog.Info("generating synthetic data", "seed", sc.Seed, "ticks", sc.Ticks, "days", sc.Days)
		return backtest.Synthetic(sc), fmt.Sprintf("synthetic seed=%d", sc.Seed), nil
	}
	f, err := feed.Open(cfg.Feed.Path, cfg.Feed.Format)
	if err != nil {
		return nil, "", fmt.Errorf("loadTicks: %w", err)
	}
	defer f.Close()
	ticks, err := feed.ReadAll(ctx, f)
	if err != nil {
		return nil, "", fmt.Errorf("loadTicks: %w", err)
	}
	slog.Info("feed loaded", "path", cfg.Feed.Path, "ticks", len(ticks))
	return ticks, filepath.Base(cfg.Feed.Path), nil
}

func runBacktest(ctx context.Context, cfg *config.Config, opts runOptions) error {
	hcfg, err := harnessConfig(cfg)
	if err != nil {
		return err
	}
	ticks, label, err := loadTicks(ctx, cfg)
	if err != nil {
		return err
	}

	slog.Info("=== BACKTEST ===", "strategy", hcfg.StrategyName, "ticks", len(ticks), "capital", cfg.Engine.InitialCapital)
	started := time.Now().UTC()
	res, err := backtest.New(hcfg, strategy.NewRegistry()).Execute(ctx, ticks, cfg.Engine.InitialCapital)
	if err != nil {
		return fmt.Errorf("runBacktest: %w", err)
	}

	console := notify.NewConsole()
	if err := console.NotifyReport(ctx, "backtest "+label, res.Report); err != nil {
		slog.Warn("notifier error", "err", err)
	}
	notional := cfg.Engine.InitialCapital * cfg.Engine.PositionFraction
	console.PrintCosts(notional, costmodel.New(hcfg.Costs).EstimateRoundTrip(notional), res.Report)
	if opts.trades > 0 {
		console.PrintTrades(res.Trades, opts.trades)
	}

	if !opts.save {
		return nil
	}
	return saveRun(ctx, cfg, domain.RunRecord{
		ID:        uuid.NewString(),
		Mode:      "backtest",
		Strategy:  res.Strategy,
		Label:     label,
		StartedAt: started,
		Report:    res.Report,
	}, res.Trades)
}

func runWalkForward(ctx context.Context, cfg *config.Config, opts runOptions) error {
	hcfg, err := harnessConfig(cfg)
	if err != nil {
		return err
	}
	ticks, label, err := loadTicks(ctx, cfg)
	if err != nil {
		return err
	}

	split := backtest.Split{Train: cfg.Backtest.TrainFraction, Validate: cfg.Backtest.ValidFraction}
	slog.Info("=== WALK-FORWARD ===", "ticks", len(ticks), "train", split.Train, "validate", split.Validate)
	started := time.Now().UTC()
	wf, err := backtest.New(hcfg, strategy.NewRegistry()).WalkForward(ctx, ticks, cfg.Engine.InitialCapital, split)
	if err != nil {
		return fmt.Errorf("runWalkForward: %w", err)
	}

	console := notify.NewConsole()
	console.PrintWalkForward(wf)
	if err := console.NotifyReport(ctx, "out-of-sample "+label, wf.Test); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	if !opts.save {
		return nil
	}
	for _, r := range []struct {
		name string
		rep  domain.PerformanceReport
	}{{"train", wf.Train}, {"validate", wf.Validate}, {"test", wf.Test}} {
		run := domain.RunRecord{
			ID:        uuid.NewString(),
			Mode:      "walk-forward/" + r.name,
			Strategy:  hcfg.StrategyName,
			Label:     label,
			StartedAt: started,
			Report:    r.rep,
		}
		if err := saveRun(ctx, cfg, run, nil); err != nil {
			return err
		}
	}
	return nil
}

func runReport(ctx context.Context, cfg *config.Config) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	defer store.Close()

	runs, err := store.Runs(ctx, 20)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}
	totals, err := store.ReasonTotals(ctx)
	if err != nil {
		return fmt.Errorf("runReport: %w", err)
	}

	console := notify.NewConsole()
	fmt.Println("\n  --- RUNS ---")
	console.PrintRuns(runs)
	if len(totals) > 0 {
		fmt.Println("\n  --- REASON CODES (all runs) ---")
		console.PrintReasons(totals)
	}
	return nil
}

func saveRun(ctx context.Context, cfg *config.Config, run domain.RunRecord, trades []domain.Trade) error {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("saveRun: %w", err)
	}
	defer store.Close()
	if err := store.SaveRun(ctx, run, trades); err != nil {
		return fmt.Errorf("saveRun: %w", err)
	}
	slog.Info("run saved", "id", run.ID, "mode", run.Mode, "dsn", cfg.Storage.DSN)
	return nil
}
