package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradecore/config"
	"github.com/alejandrodnm/tradecore/internal/decisionlog"
	"github.com/alejandrodnm/tradecore/internal/risk"
)

// runVerify checks the decision log end to end and prints what a restart
// would recover. It never writes to the log.
func runVerify(ctx context.Context, cfg *config.Config) error {
	path := cfg.DecisionLog.Path
	n, err := decisionlog.Verify(path)
	if err != nil {
		return fmt.Errorf("runVerify: %w", err)
	}
	slog.Info("decision log verified", "path", path, "entries", n)

	log, err := decisionlog.Open(path, decisionlog.Options{NoSync: true})
	if err != nil {
		return fmt.Errorf("runVerify: %w", err)
	}
	defer log.Close()

	guard := risk.New(riskConfig(cfg), cfg.Engine.InitialCapital)
	rec, err := decisionlog.Recover(ctx, log, guard)
	if err != nil {
		return fmt.Errorf("runVerify: %w", err)
	}
	rs := guard.State()

	fmt.Printf("\n  --- DECISION LOG ---\n")
	fmt.Printf("  Path:                  %s\n", path)
	fmt.Printf("  Entries:               %d (last seq %d)\n", rec.Entries, rec.LastSeq)
	fmt.Printf("  Run:                   %s\n", rec.RunID)
	fmt.Printf("  State:                 %s (frozen=%v)\n", rec.State, rec.Frozen)
	fmt.Printf("  Last tick:             %s\n", rec.LastTick.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Positions opened:      %d\n", rec.Opened)
	fmt.Printf("  Open positions:        %d\n", len(rec.Positions))
	fmt.Printf("  Closed trades:         %d\n", len(rec.Trades))
	fmt.Printf("  Capital:               $%.2f (initial $%.2f)\n", rs.CurrentCapital, rec.InitialCapital)
	fmt.Printf("  Realized drawdown:     %.2f%%\n", rs.Drawdown*100)
	fmt.Println()
	return nil
}
