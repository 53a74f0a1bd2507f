package ports

import "github.com/alejandrodnm/tradecore/internal/domain"

// TickHistory is a read-only window of past ticks, oldest first, ending
// with the tick currently being evaluated.
type TickHistory interface {
	Len() int
	At(i int) domain.Tick
}

// Strategy generates trade proposals from validated ticks.
type Strategy interface {
	// Name identifies the strategy in logs and reports.
	Name() string

	// Evaluate returns a Signal or nil. history never contains ticks later
	// than tick. Errors are treated as system faults by the engine.
	Evaluate(tick domain.Tick, history TickHistory) (*domain.Signal, error)

	// Lookback is the number of ticks the strategy needs in history.
	Lookback() int
}
