package strategy

import (
	"math"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// Trend is the short-term trend read from a fast and a slow moving average.
type Trend struct {
	Fast     float64
	Slow     float64
	Strength float64 // (fast-slow)/slow; 0 when undefined
}

// Up reports a rising market.
func (t Trend) Up() bool { return t.Strength > 0 }

// TrendFilter blocks entries against a trend stronger than MinStrength.
type TrendFilter struct {
	FastPeriod  int
	SlowPeriod  int
	MinStrength float64
}

// Read computes the trend over the tail of history. With fewer ticks than
// the slow period the trend is neutral.
func (f TrendFilter) Read(history ports.TickHistory) Trend {
	n := history.Len()
	if f.SlowPeriod <= 0 || f.FastPeriod <= 0 || n < f.SlowPeriod {
		return Trend{}
	}
	fast := mean(history, n-f.FastPeriod, n)
	slow := mean(history, n-f.SlowPeriod, n)
	t := Trend{Fast: fast, Slow: slow}
	if slow != 0 {
		t.Strength = (fast - slow) / slow
	}
	return t
}

// Blocks reports whether a trade in direction d fights trend t.
func (f TrendFilter) Blocks(d domain.Direction, t Trend) bool {
	if f.MinStrength <= 0 {
		return false
	}
	if d == domain.Long {
		return t.Strength <= -f.MinStrength
	}
	return t.Strength >= f.MinStrength
}

// Alignment returns 0..1: how strongly t agrees with d. A trend five times
// the minimum strength counts as fully aligned.
func (f TrendFilter) Alignment(d domain.Direction, t Trend) float64 {
	s := t.Strength * d.Sign()
	if s <= 0 || f.MinStrength <= 0 {
		return 0
	}
	return clamp01(s / (5 * f.MinStrength))
}

// RangeBound reports a flat market, where fading liquidations works best.
func (f TrendFilter) RangeBound(t Trend) bool {
	return math.Abs(t.Strength) < f.MinStrength/2
}

// mean of mid prices over history[from:to).
func mean(h ports.TickHistory, from, to int) float64 {
	if from < 0 {
		from = 0
	}
	if to <= from {
		return 0
	}
	var sum float64
	for i := from; i < to; i++ {
		sum += h.At(i).Mid()
	}
	return sum / float64(to-from)
}

// stddev of mid prices over history[from:to) around m.
func stddev(h ports.TickHistory, from, to int, m float64) float64 {
	if from < 0 {
		from = 0
	}
	if to-from < 2 {
		return 0
	}
	var ss float64
	for i := from; i < to; i++ {
		d := h.At(i).Mid() - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(to-from))
}
