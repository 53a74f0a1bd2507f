// Package sanitizer gates every market tick before the rest of the engine
// sees it. It returns verdicts as values; acting on them is the caller's job.
package sanitizer

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Config holds the data-quality thresholds.
type Config struct {
	MaxLatency      time.Duration
	MaxSpread       float64 // (ask-bid)/mid
	FreshnessWindow time.Duration
	PriceCeiling    float64
	// TickSizes maps instrument → minimum price increment. Instruments not
	// listed skip the tick-size check.
	TickSizes map[string]float64
}

// DefaultConfig returns conservative thresholds.
func DefaultConfig() Config {
	return Config{
		MaxLatency:      2 * time.Second,
		MaxSpread:       0.005,
		FreshnessWindow: 5 * time.Second,
		PriceCeiling:    10_000_000,
	}
}

// Stats counts verdicts since construction.
type Stats struct {
	Total    int64   `json:"total"`
	Allowed  int64   `json:"allowed"`
	Skipped  int64   `json:"skipped"`
	Rejected int64   `json:"rejected"`
	Frozen   int64   `json:"frozen"`
	PassRate float64 `json:"pass_rate"`
}

// Sanitizer validates ticks. Safe for concurrent use; the only state it
// keeps is the verdict counters.
type Sanitizer struct {
	cfg Config

	total, allowed, skipped, rejected, frozen atomic.Int64
}

// New creates a Sanitizer.
func New(cfg Config) *Sanitizer {
	return &Sanitizer{cfg: cfg}
}

// Validate runs the checks in order: latency, spread, staleness, integrity.
// ref is the engine's reference clock: the newest tick time seen so far in
// a replay, or wall-clock time in a live session.
func (s *Sanitizer) Validate(t domain.Tick, ref time.Time) domain.SanitizeResult {
	res := s.validate(t, ref)
	s.count(res.Verdict)
	return res
}

func (s *Sanitizer) validate(t domain.Tick, ref time.Time) domain.SanitizeResult {
	res := domain.SanitizeResult{Verdict: domain.VerdictAllow}

	// (a) latency
	if !t.ReceivedAt.IsZero() {
		lat := t.Latency()
		res.LatencyMs = float64(lat) / float64(time.Millisecond)
		if s.cfg.MaxLatency > 0 && lat > s.cfg.MaxLatency {
			res.Verdict = domain.VerdictFreeze
			res.Reason = domain.ErrorLatencyHigh
			res.Detail = fmt.Sprintf("latency %s > %s", lat, s.cfg.MaxLatency)
			return res
		}
	}

	// (b) spread; undefined quotes fall through to integrity
	spread := t.SpreadRatio()
	res.SpreadBps = spread * 10_000
	if s.cfg.MaxSpread > 0 && spread > s.cfg.MaxSpread {
		res.Verdict = domain.VerdictSkip
		res.Reason = domain.MarketSpreadWide
		res.Detail = fmt.Sprintf("spread %.1fbps > %.1fbps", res.SpreadBps, s.cfg.MaxSpread*10_000)
		return res
	}

	// (c) staleness
	if !ref.IsZero() {
		age := ref.Sub(t.Timestamp)
		res.AgeMs = float64(age) / float64(time.Millisecond)
		if s.cfg.FreshnessWindow > 0 && age > s.cfg.FreshnessWindow {
			res.Verdict = domain.VerdictSkip
			res.Reason = domain.ErrorDataStale
			res.Detail = fmt.Sprintf("tick %s old > %s window", age, s.cfg.FreshnessWindow)
			return res
		}
	}

	// (d) integrity
	if detail := s.integrity(t); detail != "" {
		res.Verdict = domain.VerdictReject
		res.Reason = domain.ErrorDataInvalid
		res.Detail = detail
		return res
	}
	return res
}

func (s *Sanitizer) integrity(t domain.Tick) string {
	if t.Instrument == "" {
		return "missing instrument"
	}
	if t.Timestamp.IsZero() {
		return "missing timestamp"
	}
	if !t.Finite() {
		return "non-finite price or volume"
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"bid", t.Bid}, {"ask", t.Ask}, {"last", t.Last}, {"volume", t.Volume},
		{"high", t.High}, {"low", t.Low},
		{"long_liq", t.LongLiquidations}, {"short_liq", t.ShortLiquidations},
	} {
		if f.v < 0 {
			return fmt.Sprintf("negative %s %g", f.name, f.v)
		}
	}
	price := t.Price()
	if price <= 0 {
		return "no usable price"
	}
	if s.cfg.PriceCeiling > 0 {
		for _, p := range []float64{t.Bid, t.Ask, t.Last, t.High} {
			if p >= s.cfg.PriceCeiling {
				return fmt.Sprintf("price %g above ceiling %g", p, s.cfg.PriceCeiling)
			}
		}
	}
	if t.HasQuote() && t.Ask <= t.Bid {
		return fmt.Sprintf("crossed market: ask %g <= bid %g", t.Ask, t.Bid)
	}
	if ts, ok := s.cfg.TickSizes[t.Instrument]; ok && ts > 0 {
		for _, p := range []float64{t.Bid, t.Ask} {
			if p > 0 && !onTick(p, ts) {
				return fmt.Sprintf("price %g not a multiple of tick size %g", p, ts)
			}
		}
	}
	return ""
}

// onTick allows 0.1% of a tick as floating point tolerance.
func onTick(price, tickSize float64) bool {
	r := math.Mod(price, tickSize)
	tol := tickSize * 0.001
	return r <= tol || tickSize-r <= tol
}

func (s *Sanitizer) count(v domain.Verdict) {
	s.total.Add(1)
	switch v {
	case domain.VerdictAllow:
		s.allowed.Add(1)
	case domain.VerdictSkip:
		s.skipped.Add(1)
	case domain.VerdictReject:
		s.rejected.Add(1)
	case domain.VerdictFreeze:
		s.frozen.Add(1)
	}
}

// Stats returns a snapshot of the verdict counters.
func (s *Sanitizer) Stats() Stats {
	st := Stats{
		Total:    s.total.Load(),
		Allowed:  s.allowed.Load(),
		Skipped:  s.skipped.Load(),
		Rejected: s.rejected.Load(),
		Frozen:   s.frozen.Load(),
	}
	if st.Total > 0 {
		st.PassRate = float64(st.Allowed) / float64(st.Total)
	}
	return st
}
