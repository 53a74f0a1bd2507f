package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDrawdown_ZeroPeak(t *testing.T) {
	assert.Equal(t, 0.0, Drawdown(0, 0))
	assert.Equal(t, 0.0, Drawdown(0, -100))
	assert.Equal(t, 0.0, Drawdown(-5, 10))
}

func TestDrawdown_Clamped(t *testing.T) {
	assert.Equal(t, 0.0, Drawdown(100, 120))
	assert.InDelta(t, 0.16, Drawdown(10000, 8400), 1e-12)
	assert.Equal(t, 1.0, Drawdown(100, -50))
}

func TestTick_SpreadRatioGuards(t *testing.T) {
	assert.Equal(t, 0.0, Tick{Last: 100}.SpreadRatio())
	assert.InDelta(t, 0.02, Tick{Bid: 99, Ask: 101}.SpreadRatio(), 1e-12)
	assert.Equal(t, 100.0, Tick{Bid: 99, Ask: 101}.Mid())
	assert.Equal(t, 50.0, Tick{Last: 50}.Mid())
}

func TestTick_Finite(t *testing.T) {
	assert.True(t, Tick{Bid: 1, Ask: 2}.Finite())
	assert.False(t, Tick{Bid: math.NaN()}.Finite())
	assert.False(t, Tick{Volume: math.Inf(1)}.Finite())
}

func TestPosition_MarkReturnsCopy(t *testing.T) {
	p := Position{Direction: Long, EntryPrice: 100, Size: 2, EntryFee: 0.2}
	m := p.Mark(110, time.Unix(10, 0))

	assert.Equal(t, 0.0, p.MarkPrice)
	assert.Equal(t, 110.0, m.MarkPrice)
	assert.InDelta(t, 19.8, m.UnrealizedPnL, 1e-9)
}

func TestPosition_ExitTrigger(t *testing.T) {
	opened := time.Unix(0, 0)
	long := Position{Direction: Long, EntryPrice: 100, TakeProfit: 105, StopLoss: 97, OpenedAt: opened}
	short := Position{Direction: Short, EntryPrice: 100, TakeProfit: 95, StopLoss: 103, OpenedAt: opened}

	r, ok := long.ExitTrigger(105, opened, 0)
	assert.True(t, ok)
	assert.Equal(t, ExitTakeProfit, r)

	r, ok = long.ExitTrigger(96, opened, 0)
	assert.True(t, ok)
	assert.Equal(t, ExitStopLoss, r)

	r, ok = short.ExitTrigger(94, opened, 0)
	assert.True(t, ok)
	assert.Equal(t, ExitTakeProfit, r)

	r, ok = short.ExitTrigger(104, opened, 0)
	assert.True(t, ok)
	assert.Equal(t, ExitStopLoss, r)

	_, ok = long.ExitTrigger(101, opened.Add(time.Minute), time.Hour)
	assert.False(t, ok)

	r, ok = long.ExitTrigger(101, opened.Add(2*time.Hour), time.Hour)
	assert.True(t, ok)
	assert.Equal(t, ExitTimeStop, r)
}

func TestPosition_CloseShort(t *testing.T) {
	opened := time.Unix(0, 0)
	p := Position{Direction: Short, EntryPrice: 100, Size: 1, EntryFee: 0.1, OpenedAt: opened}
	tr := p.Close(FillResult{Price: 90, Fee: 0.09}, ExitTakeProfit, opened.Add(time.Hour))

	assert.InDelta(t, 10.0, tr.GrossPnL, 1e-9)
	assert.InDelta(t, 0.19, tr.Fees, 1e-9)
	assert.InDelta(t, 9.81, tr.RealizedPnL, 1e-9)
	assert.Equal(t, time.Hour, tr.Duration)
	assert.True(t, tr.Won())
	assert.InDelta(t, 0.0981, tr.Return(), 1e-9)
}

func TestReason_Category(t *testing.T) {
	assert.Equal(t, CategorySignal, SignalStrong.Category())
	assert.Equal(t, CategoryRisk, RiskConcentration.Category())
	assert.Equal(t, CategoryMarket, MarketSpreadWide.Category())
	assert.Equal(t, CategorySystem, SystemFreeze.Category())
	assert.Equal(t, CategoryError, ErrorDataStale.Category())
	assert.True(t, SignalLiquidation.Valid())
	assert.False(t, Reason("SIGNAL_MADE_UP").Valid())
}

func TestRiskAction_Severity(t *testing.T) {
	assert.Less(t, RiskAllow.Severity(), RiskWarn.Severity())
	assert.Less(t, RiskReduce.Severity(), RiskFreeze.Severity())
	assert.True(t, RiskWarn.Permits())
	assert.False(t, RiskReduce.Permits())
}
