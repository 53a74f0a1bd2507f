package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Tick is one market observation for an instrument. Immutable once built.
type Tick struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"ts"`
	Bid        float64   `json:"bid,omitempty"`
	Ask        float64   `json:"ask,omitempty"`
	Last       float64   `json:"last,omitempty"`
	Volume     float64   `json:"volume"`
	High       float64   `json:"high,omitempty"`
	Low        float64   `json:"low,omitempty"`

	// Forced-close volume observed during the tick period, split by the side
	// that got liquidated. Zero when the feed carries no liquidation data.
	LongLiquidations  float64 `json:"long_liq,omitempty"`
	ShortLiquidations float64 `json:"short_liq,omitempty"`

	// ReceivedAt is when the feed handed the tick to the engine.
	// Zero means unknown and disables the latency check.
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// HasQuote reports whether both sides of the book are present.
func (t Tick) HasQuote() bool {
	return t.Bid > 0 && t.Ask > 0
}

// Mid returns (bid+ask)/2, falling back to Last when the quote is incomplete.
func (t Tick) Mid() float64 {
	if t.HasQuote() {
		return (t.Bid + t.Ask) / 2
	}
	return t.Last
}

// Price is the mark price used for valuation: the last trade if known,
// otherwise the mid.
func (t Tick) Price() float64 {
	if t.Last > 0 {
		return t.Last
	}
	return t.Mid()
}

// SpreadRatio returns (ask-bid)/mid, or 0 when it cannot be computed.
func (t Tick) SpreadRatio() float64 {
	if !t.HasQuote() {
		return 0
	}
	mid := t.Mid()
	if mid <= 0 {
		return 0
	}
	return (t.Ask - t.Bid) / mid
}

// ForcedVolume is the total liquidation volume on both sides.
func (t Tick) ForcedVolume() float64 {
	return t.LongLiquidations + t.ShortLiquidations
}

// Latency is the ingestion delay. Zero when ReceivedAt is unknown.
func (t Tick) Latency() time.Duration {
	if t.ReceivedAt.IsZero() {
		return 0
	}
	return t.ReceivedAt.Sub(t.Timestamp)
}

// Finite reports whether every numeric field is a real number.
func (t Tick) Finite() bool {
	for _, v := range []float64{t.Bid, t.Ask, t.Last, t.Volume, t.High, t.Low, t.LongLiquidations, t.ShortLiquidations} {
		if !finite(v) {
			return false
		}
	}
	return true
}

// Encodable returns a copy with every non-finite field zeroed, plus a
// "field=value" list of what was replaced. Empty list means t was finite.
func (t Tick) Encodable() (Tick, string) {
	var bad []string
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"bid", &t.Bid}, {"ask", &t.Ask}, {"last", &t.Last}, {"volume", &t.Volume},
		{"high", &t.High}, {"low", &t.Low}, {"long_liq", &t.LongLiquidations}, {"short_liq", &t.ShortLiquidations},
	} {
		if !finite(*f.v) {
			bad = append(bad, fmt.Sprintf("%s=%v", f.name, *f.v))
			*f.v = 0
		}
	}
	return t, strings.Join(bad, ",")
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
