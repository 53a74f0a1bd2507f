package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/adapters/notify"
	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func makeReport(trades int, pnl float64) domain.PerformanceReport {
	return domain.PerformanceReport{
		Trades:         trades,
		Wins:           trades / 2,
		Losses:         trades - trades/2,
		WinRate:        0.5,
		ProfitFactor:   1.5,
		Sharpe:         0.21,
		MaxDrawdown:    0.034,
		InitialCapital: 10_000,
		FinalCapital:   10_000 + pnl,
		TotalPnL:       pnl,
		Ticks:          1440,
		Start:          t0,
		End:            t0.Add(24 * time.Hour),
		ExitReasons:    map[domain.ExitReason]int{domain.ExitTakeProfit: trades},
		ReasonStats: map[domain.Reason]domain.ReasonStats{
			domain.SignalStrong: {Count: trades, Wins: trades / 2, TotalPnL: pnl, AvgPnL: pnl / float64(trades)},
		},
	}
}

func TestConsole_NotifyReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	require.NoError(t, n.NotifyReport(context.Background(), "synthetic", makeReport(40, 250)))

	out := buf.String()
	assert.Contains(t, out, "SYNTHETIC")
	assert.Contains(t, out, "40 (20 W / 20 L)")
	assert.Contains(t, out, "TAKE_PROFIT")
	assert.Contains(t, out, "SIGNAL_STRONG")
	assert.Contains(t, out, "$250.00")
	assert.Contains(t, out, "POSITIVE")
}

func TestConsole_NotifyReport_NoTrades(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	rep := domain.PerformanceReport{Ticks: 10, Skipped: 3, Freezes: 1, Start: t0, End: t0}
	require.NoError(t, n.NotifyReport(context.Background(), "empty", rep))

	out := buf.String()
	assert.Contains(t, out, "No trades.")
	assert.Contains(t, out, "Ticks skipped:         3")
	assert.Contains(t, out, "Freezing ticks:        1")
	assert.NotContains(t, out, "VERDICT")
}

func TestConsole_NotifyReport_Verdicts(t *testing.T) {
	cases := []struct {
		name string
		rep  domain.PerformanceReport
		want string
	}{
		{"few trades", makeReport(5, 100), "Not enough"},
		{"negative", makeReport(40, -50), "NEGATIVE"},
		{"frozen", func() domain.PerformanceReport { r := makeReport(40, 100); r.Frozen = true; return r }(), "FROZEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, notify.NewConsoleWriter(&buf).NotifyReport(context.Background(), "x", tc.rep))
			assert.Contains(t, buf.String(), tc.want)
		})
	}
}

func TestConsole_PrintReasons_BestFirst(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintReasons([]domain.ReasonStats{
		{Reason: domain.SignalWeak, Count: 3, TotalPnL: -12},
		{Reason: domain.SignalStrong, Count: 2, TotalPnL: 30},
	})

	out := buf.String()
	assert.Less(t, strings.Index(out, "SIGNAL_STRONG"), strings.Index(out, "SIGNAL_WEAK"))
}

func TestConsole_PrintWalkForward_WarnsOnOverfit(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintWalkForward(domain.WalkForwardReport{
		Train:    makeReport(40, 300),
		Validate: makeReport(10, 20),
		Test:     makeReport(10, -40),
	})

	out := buf.String()
	assert.Contains(t, out, "validate")
	assert.Contains(t, out, "Likely overfit")
}

func TestConsole_PrintTrades_Limit(t *testing.T) {
	trades := make([]domain.Trade, 5)
	for i := range trades {
		trades[i] = domain.Trade{
			Position: domain.Position{
				Instrument: "INST-" + string(rune('A'+i)),
				Direction:  domain.Long,
				EntryPrice: 100,
				Size:       1,
			},
			ExitPrice:  101,
			ExitReason: domain.ExitTakeProfit,
			ClosedAt:   t0.Add(time.Duration(i) * time.Minute),
		}
	}

	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintTrades(trades, 2)

	out := buf.String()
	assert.NotContains(t, out, "INST-A")
	assert.Contains(t, out, "INST-D")
	assert.Contains(t, out, "INST-E")
}

func TestConsole_PrintRuns(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintRuns(nil)
	assert.Contains(t, buf.String(), "No runs stored yet")

	buf.Reset()
	rep := makeReport(40, 100)
	rep.ProfitFactor = domain.ProfitFactorCap
	rep.Frozen = true
	n.PrintRuns([]domain.RunRecord{{
		ID: "r1", Mode: "backtest", Strategy: "liquidation_hunter",
		Label: "a-very-long-label-for-a-feed-file.jsonl", StartedAt: t0, Report: rep,
	}})

	out := buf.String()
	assert.Contains(t, out, "liquidation_hunter")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "a-very-long-label...")
	assert.Contains(t, out, "yes")
}

func TestConsole_PrintCosts(t *testing.T) {
	var buf bytes.Buffer
	rt := costmodel.RoundTrip{EntryFee: 1, ExitFee: 1, SlippageCost: 0.22, TotalCost: 2.22, CostBps: 22.2}
	notify.NewConsoleWriter(&buf).PrintCosts(1000, rt, makeReport(40, 100))

	out := buf.String()
	assert.Contains(t, out, "round trip at $1000")
	assert.Contains(t, out, "$2.2200 (22.2 bps)")
	assert.Contains(t, out, "Realized fees/trade")
}
