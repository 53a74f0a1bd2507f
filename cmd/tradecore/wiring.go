package main

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/alejandrodnm/tradecore/internal/application/backtest"
	"github.com/alejandrodnm/tradecore/internal/application/engine"
	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/events"
	"github.com/alejandrodnm/tradecore/internal/risk"
	"github.com/alejandrodnm/tradecore/internal/sanitizer"
	"github.com/alejandrodnm/tradecore/internal/strategy"
)

// harnessConfig traduce la config de archivo a la de cada componente.
func harnessConfig(cfg *config.Config) (backtest.Config, error) {
	fees, err := costmodel.ScheduleFor(cfg.Costs.Venue, cfg.Costs.MakerFee, cfg.Costs.TakerFee)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("harnessConfig: %w", err)
	}
	return backtest.Config{
		Engine:       engineConfig(cfg),
		Sanitizer:    sanitizerConfig(cfg),
		Costs:        costsConfig(cfg, fees),
		Risk:         riskConfig(cfg),
		Strategy:     strategyConfig(cfg),
		StrategyName: cfg.Strategy.Name,
		Retention:    cfg.Reasons.Retention,
	}, nil
}

func engineConfig(cfg *config.Config) engine.Config {
	orderType := domain.Market
	if cfg.Engine.OrderType == "limit" {
		orderType = domain.Limit
	}
	return engine.Config{
		InitialCapital:            cfg.Engine.InitialCapital,
		PositionFraction:          cfg.Engine.PositionFraction,
		MaxPositionsPerInstrument: cfg.Engine.MaxPositionsPerInstrument,
		TakeProfitPct:             cfg.Engine.TakeProfitPct,
		StopLossPct:               cfg.Engine.StopLossPct,
		MaxHold:                   cfg.MaxHold(),
		OrderType:                 orderType,
		HistorySize:               cfg.Engine.HistorySize,
	}
}

func sanitizerConfig(cfg *config.Config) sanitizer.Config {
	return sanitizer.Config{
		MaxLatency:      cfg.MaxLatency(),
		MaxSpread:       cfg.Sanitizer.MaxSpread,
		FreshnessWindow: cfg.FreshnessWindow(),
		PriceCeiling:    cfg.Sanitizer.PriceCeiling,
		TickSizes:       cfg.Sanitizer.TickSizes,
	}
}

func costsConfig(cfg *config.Config, fees costmodel.FeeSchedule) costmodel.Config {
	return costmodel.Config{
		Fees:              fees,
		BaseSlippageBps:   cfg.Costs.BaseSlippageBps,
		ImpactCoefficient: cfg.Costs.ImpactCoefficient,
		ReferenceVolume:   cfg.Costs.ReferenceVolume,
		MinFee:            cfg.Costs.MinFee,
	}
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		MaxDrawdown:         cfg.Risk.MaxDrawdown,
		WarnFraction:        cfg.Risk.WarnFraction,
		MaxPositionFraction: cfg.Risk.MaxPositionFraction,
		MinNotional:         cfg.Risk.MinNotional,
		MaxConcentration:    cfg.Risk.MaxConcentration,
		MaxTradesPerWindow:  cfg.Risk.MaxTradesPerWindow,
		Window:              cfg.RiskWindow(),
		MaxPositionLoss:     cfg.Risk.MaxPositionLoss,
	}
}

func strategyConfig(cfg *config.Config) strategy.Config {
	s := cfg.Strategy
	return strategy.Config{
		Window:           s.Window,
		TriggerRatio:     s.TriggerRatio,
		ArmRatio:         s.ArmRatio,
		MinClusterVolume: s.MinClusterVolume,
		CooldownTicks:    s.CooldownTicks,
		FastPeriod:       s.FastPeriod,
		SlowPeriod:       s.SlowPeriod,
		MinTrendStrength: s.MinTrendStrength,
		BaseConfidence:   s.BaseConfidence,
		MinConfidence:    s.MinConfidence,
		ZScoreEntry:      s.ZScoreEntry,
	}
}

func syntheticConfig(cfg *config.Config) backtest.SyntheticConfig {
	sc := backtest.DefaultSyntheticConfig()
	sc.Seed = uint64(cfg.Backtest.Seed)
	sc.Ticks = cfg.Backtest.Ticks
	sc.Days = cfg.Backtest.Days
	sc.Instrument = cfg.Backtest.Instrument
	sc.StartPrice = cfg.Backtest.StartPrice
	return sc
}

func busConfig(cfg *config.Config) events.Config {
	return events.Config{
		QueueSize:  cfg.Publisher.QueueSize,
		RateWindow: time.Duration(cfg.Publisher.RateWindowSeconds) * time.Second,
	}
}
