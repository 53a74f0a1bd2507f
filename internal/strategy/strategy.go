// Package strategy holds the signal generators. Each implements
// ports.Strategy and is selected by name when the engine is built.
package strategy

import (
	"fmt"
	"sort"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

// Config carries the parameters of every built-in strategy. Each strategy
// reads the fields it needs.
type Config struct {
	Window           int     // ticks in the rolling cluster / z-score window
	TriggerRatio     float64 // forced/total volume that fires a signal
	ArmRatio         float64 // forced/total volume that arms the detector
	MinClusterVolume float64
	CooldownTicks    int
	FastPeriod       int
	SlowPeriod       int
	MinTrendStrength float64 // |fast-slow|/slow above which counter-trend entries are blocked
	BaseConfidence   float64
	MinConfidence    float64
	ZScoreEntry      float64
}

// DefaultConfig returns the reference parameters.
func DefaultConfig() Config {
	return Config{
		Window:           20,
		TriggerRatio:     0.3,
		ArmRatio:         0.15,
		CooldownTicks:    30,
		FastPeriod:       10,
		SlowPeriod:       30,
		MinTrendStrength: 0.002,
		BaseConfidence:   0.5,
		MinConfidence:    0.4,
		ZScoreEntry:      2,
	}
}

// Factory builds a fresh strategy. Strategies carry per-instrument state,
// so every engine gets its own instance.
type Factory func(Config) ports.Strategy

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry con las estrategias incluidas.
func NewRegistry() Registry {
	r := make(Registry)
	r.Register(LiquidationHunterName, func(c Config) ports.Strategy { return NewLiquidationHunter(c) })
	r.Register(MeanReversionName, func(c Config) ports.Strategy { return NewMeanReversion(c) })
	return r
}

// Register añade una estrategia al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// New construye la estrategia por nombre.
func (r Registry) New(name string, cfg Config) (ports.Strategy, error) {
	f, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("strategy.New: %q (have %v): %w", name, r.Names(), domain.ErrUnknownStrategy)
	}
	return f(cfg), nil
}

// Names devuelve los nombres registrados, ordenados.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Grade maps a confidence to its signal strength code.
func Grade(confidence float64) domain.Reason {
	switch {
	case confidence >= 0.75:
		return domain.SignalStrong
	case confidence >= 0.55:
		return domain.SignalMedium
	default:
		return domain.SignalWeak
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Stats counts what a strategy did with the ticks it saw.
type Stats struct {
	Evaluated int
	Signals   int
	Filtered  int // blocked by trend or low confidence
}
