package sanitizer_test

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/sanitizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func goodTick() domain.Tick {
	return domain.Tick{
		Instrument: "BTC-USDT",
		Timestamp:  t0,
		ReceivedAt: t0.Add(50 * time.Millisecond),
		Bid:        100.00,
		Ask:        100.02,
		Last:       100.01,
		Volume:     10,
	}
}

func newSanitizer() *sanitizer.Sanitizer {
	cfg := sanitizer.DefaultConfig()
	cfg.MaxLatency = 500 * time.Millisecond
	cfg.FreshnessWindow = 2 * time.Second
	cfg.MaxSpread = 0.005
	cfg.PriceCeiling = 1_000_000
	return sanitizer.New(cfg)
}

func TestValidate_Allow(t *testing.T) {
	s := newSanitizer()
	res := s.Validate(goodTick(), t0)
	assert.Equal(t, domain.VerdictAllow, res.Verdict)
	assert.InDelta(t, 50, res.LatencyMs, 0.001)
	assert.InDelta(t, 2, res.SpreadBps, 0.01)
}

func TestValidate_LatencyFreezes(t *testing.T) {
	s := newSanitizer()
	tick := goodTick()
	tick.ReceivedAt = tick.Timestamp.Add(time.Second)

	res := s.Validate(tick, t0)
	assert.Equal(t, domain.VerdictFreeze, res.Verdict)
	assert.Equal(t, domain.ErrorLatencyHigh, res.Reason)
}

func TestValidate_LatencyCheckedBeforeSpread(t *testing.T) {
	s := newSanitizer()
	tick := goodTick()
	tick.ReceivedAt = tick.Timestamp.Add(time.Second)
	tick.Ask = 120

	assert.Equal(t, domain.VerdictFreeze, s.Validate(tick, t0).Verdict)
}

func TestValidate_UnknownReceiptSkipsLatency(t *testing.T) {
	s := newSanitizer()
	tick := goodTick()
	tick.ReceivedAt = time.Time{}
	assert.Equal(t, domain.VerdictAllow, s.Validate(tick, t0).Verdict)
}

func TestValidate_WideSpreadSkips(t *testing.T) {
	s := newSanitizer()
	tick := goodTick()
	tick.Bid, tick.Ask = 99, 101 // 2%

	res := s.Validate(tick, t0)
	assert.Equal(t, domain.VerdictSkip, res.Verdict)
	assert.Equal(t, domain.MarketSpreadWide, res.Reason)
}

func TestValidate_StaleSkips(t *testing.T) {
	s := newSanitizer()
	tick := goodTick()
	tick.Timestamp = t0.Add(-10 * time.Second)
	tick.ReceivedAt = tick.Timestamp.Add(10 * time.Millisecond)

	res := s.Validate(tick, t0)
	assert.Equal(t, domain.VerdictSkip, res.Verdict)
	assert.Equal(t, domain.ErrorDataStale, res.Reason)
	assert.InDelta(t, 10_000, res.AgeMs, 0.001)
}

func TestValidate_IntegrityRejects(t *testing.T) {
	cases := map[string]func(*domain.Tick){
		"nan bid":         func(tk *domain.Tick) { tk.Bid = math.NaN() },
		"inf volume":      func(tk *domain.Tick) { tk.Volume = math.Inf(1) },
		"negative volume": func(tk *domain.Tick) { tk.Volume = -1 },
		"above ceiling": func(tk *domain.Tick) {
			tk.Bid, tk.Ask, tk.Last = 2_000_000, 2_000_001, 2_000_000
		},
		"crossed":            func(tk *domain.Tick) { tk.Bid, tk.Ask = 100.02, 100.00 },
		"no price":           func(tk *domain.Tick) { tk.Bid, tk.Ask, tk.Last = 0, 0, 0 },
		"missing instrument": func(tk *domain.Tick) { tk.Instrument = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := newSanitizer()
			tick := goodTick()
			mutate(&tick)
			res := s.Validate(tick, t0)
			assert.Equal(t, domain.VerdictReject, res.Verdict, res.Detail)
			assert.Equal(t, domain.ErrorDataInvalid, res.Reason)
		})
	}
}

func TestValidate_TickSize(t *testing.T) {
	cfg := sanitizer.DefaultConfig()
	cfg.TickSizes = map[string]float64{"BTC-USDT": 0.01}
	s := sanitizer.New(cfg)

	tick := goodTick()
	assert.Equal(t, domain.VerdictAllow, s.Validate(tick, t0).Verdict)

	tick.Bid = 100.005
	assert.Equal(t, domain.VerdictReject, s.Validate(tick, t0).Verdict)
}

func TestStats_CountsVerdicts(t *testing.T) {
	s := newSanitizer()
	s.Validate(goodTick(), t0)
	wide := goodTick()
	wide.Ask = 110
	s.Validate(wide, t0)

	st := s.Stats()
	require.Equal(t, int64(2), st.Total)
	assert.Equal(t, int64(1), st.Allowed)
	assert.Equal(t, int64(1), st.Skipped)
	assert.InDelta(t, 0.5, st.PassRate, 1e-9)
}
