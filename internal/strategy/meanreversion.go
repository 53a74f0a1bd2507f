package strategy

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// MeanReversionName is the registry key.
const MeanReversionName = "mean_reversion"

// MeanReversion trades z-score extremes of the mid against its moving
// average and targets the average as take-profit.
type MeanReversion struct {
	cfg      Config
	cooldown map[string]int
	stats    Stats
}

// NewMeanReversion creates the strategy.
func NewMeanReversion(cfg Config) *MeanReversion {
	return &MeanReversion{cfg: cfg, cooldown: make(map[string]int)}
}

// Name implements ports.Strategy.
func (m *MeanReversion) Name() string { return MeanReversionName }

// Lookback implements ports.Strategy.
func (m *MeanReversion) Lookback() int { return max(m.cfg.Window, 2) }

// Stats returns evaluation counters.
func (m *MeanReversion) Stats() Stats { return m.stats }

// ZScore of the current mid over the window. 0 when the window is flat.
func (m *MeanReversion) ZScore(history ports.TickHistory) (z, avg float64) {
	n := history.Len()
	if n < m.Lookback() {
		return 0, 0
	}
	from := n - m.cfg.Window
	avg = mean(history, from, n)
	sd := stddev(history, from, n, avg)
	if sd == 0 {
		return 0, avg
	}
	return (history.At(n-1).Mid() - avg) / sd, avg
}

// Evaluate implements ports.Strategy.
func (m *MeanReversion) Evaluate(tick domain.Tick, history ports.TickHistory) (*domain.Signal, error) {
	m.stats.Evaluated++
	if left := m.cooldown[tick.Instrument]; left > 0 {
		m.cooldown[tick.Instrument] = left - 1
		return nil, nil
	}

	z, avg := m.ZScore(history)
	if math.Abs(z) < m.cfg.ZScoreEntry || m.cfg.ZScoreEntry <= 0 {
		return nil, nil
	}
	dir := domain.Long
	if z > 0 {
		dir = domain.Short
	}
	confidence := clamp01(m.cfg.BaseConfidence + 0.25*(math.Abs(z)-m.cfg.ZScoreEntry))
	if confidence < m.cfg.MinConfidence {
		m.stats.Filtered++
		return nil, nil
	}

	m.cooldown[tick.Instrument] = m.cfg.CooldownTicks
	m.stats.Signals++
	return &domain.Signal{
		Instrument: tick.Instrument,
		Direction:  dir,
		Price:      entryPrice(tick, dir),
		Confidence: confidence,
		Reason:     Grade(confidence),
		Strategy:   MeanReversionName,
		At:         tick.Timestamp,
		TakeProfit: avg,
		Rationale:  fmt.Sprintf("z-score %+.2f vs %d-tick mean %.4f", z, m.cfg.Window, avg),
	}, nil
}
