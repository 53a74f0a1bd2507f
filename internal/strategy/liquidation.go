package strategy

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// LiquidationHunterName is the registry key.
const LiquidationHunterName = "liquidation_hunter"

// Phase is the per-instrument detector state.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseArmed    Phase = "ARMED"
	PhaseSignaled Phase = "SIGNALED"
	PhaseCooldown Phase = "COOLDOWN"
)

type hunterState struct {
	phase    Phase
	cooldown int
}

// Cluster summarises forced-close activity over the rolling window.
type Cluster struct {
	Forced float64
	Total  float64
	Long   float64 // long positions liquidated
	Short  float64 // short positions liquidated
	Ratio  float64 // Forced/Total, 0 when Total is 0
}

// LiquidationHunter fades liquidation cascades: when longs are being
// force-closed it buys the dip, when shorts are it sells the squeeze.
type LiquidationHunter struct {
	cfg    Config
	filter TrendFilter
	states map[string]*hunterState
	stats  Stats
}

// NewLiquidationHunter creates the strategy.
func NewLiquidationHunter(cfg Config) *LiquidationHunter {
	return &LiquidationHunter{
		cfg: cfg,
		filter: TrendFilter{
			FastPeriod:  cfg.FastPeriod,
			SlowPeriod:  cfg.SlowPeriod,
			MinStrength: cfg.MinTrendStrength,
		},
		states: make(map[string]*hunterState),
	}
}

// Name implements ports.Strategy.
func (h *LiquidationHunter) Name() string { return LiquidationHunterName }

// Lookback implements ports.Strategy.
func (h *LiquidationHunter) Lookback() int { return max(h.cfg.Window, h.cfg.SlowPeriod, 1) }

// Phase returns the detector state of an instrument.
func (h *LiquidationHunter) Phase(instrument string) Phase {
	if st, ok := h.states[instrument]; ok {
		return st.phase
	}
	return PhaseIdle
}

// Stats returns evaluation counters.
func (h *LiquidationHunter) Stats() Stats { return h.stats }

// ClusterOf measures the tail of history.
func (h *LiquidationHunter) ClusterOf(history ports.TickHistory) Cluster {
	var c Cluster
	n := history.Len()
	from := max(n-h.cfg.Window, 0)
	for i := from; i < n; i++ {
		t := history.At(i)
		c.Long += t.LongLiquidations
		c.Short += t.ShortLiquidations
		c.Total += t.Volume
	}
	c.Forced = c.Long + c.Short
	if c.Total > 0 {
		c.Ratio = c.Forced / c.Total
	}
	return c
}

// Evaluate implements ports.Strategy.
func (h *LiquidationHunter) Evaluate(tick domain.Tick, history ports.TickHistory) (*domain.Signal, error) {
	st, ok := h.states[tick.Instrument]
	if !ok {
		st = &hunterState{phase: PhaseIdle}
		h.states[tick.Instrument] = st
	}
	h.stats.Evaluated++

	if st.phase == PhaseSignaled {
		st.phase = PhaseCooldown
		st.cooldown = h.cfg.CooldownTicks
	}
	if st.phase == PhaseCooldown {
		if st.cooldown > 0 {
			st.cooldown--
			return nil, nil
		}
		st.phase = PhaseIdle
	}

	c := h.ClusterOf(history)
	if c.Forced <= 0 || c.Ratio < h.cfg.ArmRatio {
		st.phase = PhaseIdle
		return nil, nil
	}
	st.phase = PhaseArmed
	if c.Ratio < h.cfg.TriggerRatio || c.Forced < h.cfg.MinClusterVolume {
		return nil, nil
	}

	var dir domain.Direction
	switch {
	case c.Long > c.Short:
		dir = domain.Long
	case c.Short > c.Long:
		dir = domain.Short
	default:
		return nil, nil
	}

	trend := h.filter.Read(history)
	if h.filter.Blocks(dir, trend) {
		h.stats.Filtered++
		slog.Debug("strategy: counter-trend entry blocked",
			"instrument", tick.Instrument, "direction", dir, "strength", trend.Strength)
		return nil, nil
	}

	confidence := h.confidence(c, dir, trend)
	if confidence < h.cfg.MinConfidence {
		h.stats.Filtered++
		return nil, nil
	}

	st.phase = PhaseSignaled
	h.stats.Signals++
	return &domain.Signal{
		Instrument: tick.Instrument,
		Direction:  dir,
		Price:      entryPrice(tick, dir),
		Confidence: confidence,
		Reason:     Grade(confidence),
		Strategy:   LiquidationHunterName,
		At:         tick.Timestamp,
		Rationale: fmt.Sprintf("liquidation cluster %.0f%% of volume (long %.2f / short %.2f), trend %+.4f",
			c.Ratio*100, c.Long, c.Short, trend.Strength),
	}, nil
}

// confidence = base + cluster intensity + trend alignment + flat-market bonus.
func (h *LiquidationHunter) confidence(c Cluster, dir domain.Direction, t Trend) float64 {
	conf := h.cfg.BaseConfidence
	if h.cfg.TriggerRatio < 1 {
		conf += 0.3 * clamp01((c.Ratio-h.cfg.TriggerRatio)/(1-h.cfg.TriggerRatio))
	}
	conf += 0.2 * h.filter.Alignment(dir, t)
	if h.filter.RangeBound(t) {
		conf += 0.1
	}
	return clamp01(conf)
}

// entryPrice is the side of the book a market order would hit.
func entryPrice(t domain.Tick, d domain.Direction) float64 {
	if d == domain.Long && t.Ask > 0 {
		return t.Ask
	}
	if d == domain.Short && t.Bid > 0 {
		return t.Bid
	}
	return t.Price()
}
