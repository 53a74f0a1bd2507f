package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/tradecore/internal/costmodel"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyReport imprime el reporte de performance de un run.
func (c *Console) NotifyReport(_ context.Context, label string, rep domain.PerformanceReport) error {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  %s\n", strings.ToUpper(label))
	if !rep.Start.IsZero() {
		fmt.Fprintf(c.out, "  %s to %s (%d ticks)\n",
			rep.Start.Format("2006-01-02 15:04"),
			rep.End.Format("2006-01-02 15:04"),
			rep.Ticks)
	}
	fmt.Fprintf(c.out, "========================================================\n")

	if rep.Trades == 0 {
		fmt.Fprintln(c.out, "\n  No trades.")
		c.printFilters(rep)
		return nil
	}

	fmt.Fprintf(c.out, "\n  --- RESULTS ---\n")
	fmt.Fprintf(c.out, "  Trades:                %d (%d W / %d L)\n", rep.Trades, rep.Wins, rep.Losses)
	fmt.Fprintf(c.out, "  Win rate:              %.1f%%\n", rep.WinRate*100)
	fmt.Fprintf(c.out, "  Profit factor:         %s\n", profitFactorLabel(rep.ProfitFactor))
	fmt.Fprintf(c.out, "  Sharpe (per trade):    %.3f\n", rep.Sharpe)
	fmt.Fprintf(c.out, "  Max drawdown:          %.2f%%\n", rep.MaxDrawdown*100)
	fmt.Fprintf(c.out, "  Total P&L:             $%.2f (%+.2f%%)\n", rep.TotalPnL, pct(rep.TotalPnL, rep.InitialCapital))
	fmt.Fprintf(c.out, "  Fees paid:             $%.2f\n", rep.TotalFees)
	fmt.Fprintf(c.out, "  Final capital:         $%.2f\n", rep.FinalCapital)
	fmt.Fprintf(c.out, "  Avg trade:             $%.4f\n", rep.AvgTrade)
	fmt.Fprintf(c.out, "  Avg holding time:      %s\n", rep.AvgDuration.Round(time.Second))

	if len(rep.ExitReasons) > 0 {
		fmt.Fprintf(c.out, "\n  --- EXITS ---\n")
		exits := make([]domain.ExitReason, 0, len(rep.ExitReasons))
		for r := range rep.ExitReasons {
			exits = append(exits, r)
		}
		sort.Slice(exits, func(i, j int) bool { return exits[i] < exits[j] })

		table := tablewriter.NewWriter(c.out)
		table.Header("Exit", "Count", "Share")
		for _, r := range exits {
			n := rep.ExitReasons[r]
			table.Append(string(r), fmt.Sprintf("%d", n), fmt.Sprintf("%.1f%%", float64(n)/float64(rep.Trades)*100))
		}
		table.Render()
	}

	if len(rep.ReasonStats) > 0 {
		fmt.Fprintf(c.out, "\n  --- REASONS ---\n")
		stats := make([]domain.ReasonStats, 0, len(rep.ReasonStats))
		for code, st := range rep.ReasonStats {
			st.Reason = code
			stats = append(stats, st)
		}
		c.PrintReasons(stats)
	}

	c.printFilters(rep)

	fmt.Fprintf(c.out, "\n  --- VERDICT ---\n")
	switch {
	case rep.Frozen:
		fmt.Fprintf(c.out, "  FROZEN: the run hit a hard stop. Check the decision log before anything else.\n")
	case rep.Trades < 30:
		fmt.Fprintf(c.out, "  Only %d trades. Not enough for conclusions.\n", rep.Trades)
	case rep.TotalPnL > 0 && rep.ProfitFactor > 1.2:
		fmt.Fprintf(c.out, "  POSITIVE: net profitable after fees and slippage.\n")
		fmt.Fprintf(c.out, "  >>> Confirm with walk-forward before paper trading.\n")
	case rep.TotalPnL > 0:
		fmt.Fprintf(c.out, "  MARGINAL: profitable but thin. Costs could erase it.\n")
	default:
		fmt.Fprintf(c.out, "  NEGATIVE: not profitable after costs. Review strategy.\n")
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *Console) printFilters(rep domain.PerformanceReport) {
	if rep.Skipped == 0 && rep.Rejected == 0 && rep.Freezes == 0 {
		return
	}
	fmt.Fprintf(c.out, "\n  --- DATA QUALITY ---\n")
	fmt.Fprintf(c.out, "  Ticks skipped:         %d\n", rep.Skipped)
	fmt.Fprintf(c.out, "  Ticks rejected:        %d\n", rep.Rejected)
	if rep.Freezes > 0 {
		fmt.Fprintf(c.out, "  Freezing ticks:        %d\n", rep.Freezes)
	}
}

// PrintReasons imprime la tabla de reason codes, mejores primero.
func (c *Console) PrintReasons(stats []domain.ReasonStats) {
	sorted := append([]domain.ReasonStats(nil), stats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalPnL != sorted[j].TotalPnL {
			return sorted[i].TotalPnL > sorted[j].TotalPnL
		}
		return sorted[i].Reason < sorted[j].Reason
	})

	table := tablewriter.NewWriter(c.out)
	table.Header("Reason", "Count", "W", "L", "Blocked", "Win%", "Total P&L", "Avg P&L")
	for _, st := range sorted {
		table.Append(
			string(st.Reason),
			fmt.Sprintf("%d", st.Count),
			fmt.Sprintf("%d", st.Wins),
			fmt.Sprintf("%d", st.Losses),
			fmt.Sprintf("%d", st.Blocked),
			fmt.Sprintf("%.1f%%", st.WinRate*100),
			fmt.Sprintf("$%.2f", st.TotalPnL),
			fmt.Sprintf("$%.4f", st.AvgPnL),
		)
	}
	table.Render()
}

// PrintCosts compara el costo estimado de un round trip con lo realizado.
func (c *Console) PrintCosts(notional float64, rt costmodel.RoundTrip, rep domain.PerformanceReport) {
	fmt.Fprintf(c.out, "\n  --- COSTS (round trip at $%.0f) ---\n", notional)
	fmt.Fprintf(c.out, "  Fees:                  $%.4f\n", rt.EntryFee+rt.ExitFee)
	fmt.Fprintf(c.out, "  Slippage:              $%.4f\n", rt.SlippageCost)
	fmt.Fprintf(c.out, "  Total:                 $%.4f (%.1f bps)\n", rt.TotalCost, rt.CostBps)
	if rep.Trades > 0 {
		realized := rep.TotalFees / float64(rep.Trades)
		fmt.Fprintf(c.out, "  Realized fees/trade:   $%.4f\n", realized)
	}
}

// PrintWalkForward compara los tres tramos lado a lado.
func (c *Console) PrintWalkForward(wf domain.WalkForwardReport) {
	fmt.Fprintf(c.out, "\n  --- WALK-FORWARD ---\n")
	table := tablewriter.NewWriter(c.out)
	table.Header("Range", "From", "Ticks", "Trades", "Win%", "PF", "Sharpe", "MaxDD", "P&L")
	for _, r := range []struct {
		name string
		rep  domain.PerformanceReport
	}{{"train", wf.Train}, {"validate", wf.Validate}, {"test", wf.Test}} {
		table.Append(
			r.name,
			r.rep.Start.Format("2006-01-02"),
			fmt.Sprintf("%d", r.rep.Ticks),
			fmt.Sprintf("%d", r.rep.Trades),
			fmt.Sprintf("%.1f%%", r.rep.WinRate*100),
			profitFactorLabel(r.rep.ProfitFactor),
			fmt.Sprintf("%.3f", r.rep.Sharpe),
			fmt.Sprintf("%.2f%%", r.rep.MaxDrawdown*100),
			fmt.Sprintf("$%.2f", r.rep.TotalPnL),
		)
	}
	table.Render()

	// Un edge real sobrevive fuera de muestra
	if wf.Train.TotalPnL > 0 && wf.Test.TotalPnL <= 0 {
		fmt.Fprintf(c.out, "  WARNING: profitable in train, not in test. Likely overfit.\n")
	}
}

// PrintTrades imprime los últimos limit trades. limit <= 0 los imprime todos.
func (c *Console) PrintTrades(trades []domain.Trade, limit int) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades.")
		return
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Closed", "Instrument", "Dir", "Entry", "Exit", "Size", "P&L", "Exit reason", "Reason")
	for _, t := range trades {
		table.Append(
			t.ClosedAt.Format("01-02 15:04"),
			t.Instrument,
			string(t.Direction),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%.6f", t.Size),
			fmt.Sprintf("$%.2f", t.RealizedPnL),
			string(t.ExitReason),
			string(t.Reason),
		)
	}
	table.Render()
}

// PrintRuns imprime el historial de runs guardados.
func (c *Console) PrintRuns(runs []domain.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "\n  No runs stored yet. Run a backtest first.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Started", "Mode", "Strategy", "Label", "Trades", "Win%", "PF", "MaxDD", "P&L", "Frozen")
	for _, r := range runs {
		frozen := ""
		if r.Report.Frozen {
			frozen = "yes"
		}
		table.Append(
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Mode,
			r.Strategy,
			compactName(r.Label, 20),
			fmt.Sprintf("%d", r.Report.Trades),
			fmt.Sprintf("%.1f%%", r.Report.WinRate*100),
			profitFactorLabel(r.Report.ProfitFactor),
			fmt.Sprintf("%.2f%%", r.Report.MaxDrawdown*100),
			fmt.Sprintf("$%.2f", r.Report.TotalPnL),
			frozen,
		)
	}
	table.Render()
}

// --- helpers ---

func profitFactorLabel(pf float64) string {
	if pf >= domain.ProfitFactorCap {
		return "INF"
	}
	return fmt.Sprintf("%.2f", pf)
}

func pct(v, base float64) float64 {
	if base == 0 {
		return 0
	}
	return v / base * 100
}

// compactName trunca s a max runas con "...".
func compactName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
