package backtest

import (
	"math"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// BuildReport computes the trade statistics of a run. equity is the
// mark-to-market curve, one point per processed tick, starting at
// initialCapital. Run-level fields (ticks, skips, dates) are left to the
// caller.
func BuildReport(initialCapital float64, trades []domain.Trade, equity []float64, reasonStats map[domain.Reason]domain.ReasonStats) domain.PerformanceReport {
	rep := domain.PerformanceReport{
		Trades:         len(trades),
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		ExitReasons:    make(map[domain.ExitReason]int),
		ReasonStats:    reasonStats,
	}
	if rep.ReasonStats == nil {
		rep.ReasonStats = make(map[domain.Reason]domain.ReasonStats)
	}

	var grossWin, grossLoss float64
	var held time.Duration
	for _, t := range trades {
		rep.TotalPnL += t.RealizedPnL
		rep.TotalFees += t.Fees
		held += t.Duration
		rep.ExitReasons[t.ExitReason]++
		if t.Won() {
			rep.Wins++
			grossWin += t.RealizedPnL
		} else {
			rep.Losses++
			grossLoss -= t.RealizedPnL
		}
	}
	rep.FinalCapital = initialCapital + rep.TotalPnL

	if n := len(trades); n > 0 {
		rep.WinRate = float64(rep.Wins) / float64(n)
		rep.AvgTrade = rep.TotalPnL / float64(n)
		rep.AvgDuration = held / time.Duration(n)
	}
	rep.ProfitFactor = profitFactor(grossWin, grossLoss)
	rep.Sharpe = sharpe(trades)
	rep.MaxDrawdown = maxDrawdown(equity)
	return rep
}

// profitFactor is gross win over gross loss, capped when nothing was lost.
func profitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss <= 0 {
		if grossWin > 0 {
			return domain.ProfitFactorCap
		}
		return 0
	}
	return math.Min(grossWin/grossLoss, domain.ProfitFactorCap)
}

// sharpe is the mean over the population standard deviation of per-trade
// returns. Not annualized; trades have no fixed period.
func sharpe(trades []domain.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.Return()
	}
	mean := sum / float64(len(trades))

	var variance float64
	for _, t := range trades {
		d := t.Return() - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(trades)))
	if std == 0 {
		return 0
	}
	return mean / std
}

// maxDrawdown is the largest peak-to-trough fall of the equity curve, as a
// fraction of the peak. Always in [0,1]; 0 when the peak is not positive.
func maxDrawdown(equity []float64) float64 {
	var peak, worst float64
	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - eq) / peak; dd > worst {
			worst = dd
		}
	}
	return math.Min(worst, 1)
}
