package backtest

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// regimeEvery is how many ticks pass between trend regime draws.
const regimeEvery = 480

// SyntheticConfig parametrises the generator. The same config always
// produces the same ticks.
type SyntheticConfig struct {
	Seed            uint64
	Ticks           int
	Days            int
	Instrument      string
	StartPrice      float64
	DailyVolatility float64
	DailyVolume     float64
	SpreadBps       float64
	TrendStrength   float64
	// BurstProbability is the per-tick chance a liquidation cascade starts.
	BurstProbability float64
	Start            time.Time
}

// DefaultSyntheticConfig is 60 days of one-minute ticks.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:             42,
		Ticks:            86_400,
		Days:             60,
		Instrument:       "BTC-USDT",
		StartPrice:       30_000,
		DailyVolatility:  0.025,
		DailyVolume:      50_000,
		SpreadBps:        1,
		TrendStrength:    0.3,
		BurstProbability: 0.003,
		Start:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Synthetic generates a tick series with trend regimes, intraday volatility,
// mean reversion to the start price and liquidation cascades.
func Synthetic(cfg SyntheticConfig) []domain.Tick {
	if cfg.Ticks <= 0 {
		return nil
	}
	if cfg.Days <= 0 {
		cfg.Days = 1
	}
	if cfg.Start.IsZero() {
		cfg.Start = DefaultSyntheticConfig().Start
	}
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = 1
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	step := time.Duration(cfg.Days) * 24 * time.Hour / time.Duration(cfg.Ticks)
	perDay := float64(24*time.Hour) / float64(step)
	tickVol := cfg.DailyVolatility / math.Sqrt(perDay)
	avgVolume := cfg.DailyVolume / perDay
	halfSpread := cfg.SpreadBps / 10_000 / 2

	ticks := make([]domain.Tick, 0, cfg.Ticks)
	price := cfg.StartPrice
	trend := regime(rng)

	var burstLeft int
	var burstLong bool

	for i := 0; i < cfg.Ticks; i++ {
		ts := cfg.Start.Add(time.Duration(i) * step)
		if i%regimeEvery == 0 {
			trend = regime(rng)
		}
		volMult := sessionVolatility(ts.Hour())

		ret := trend*cfg.TrendStrength*tickVol +
			rng.NormFloat64()*tickVol*volMult -
			(price-cfg.StartPrice)/cfg.StartPrice*0.001

		if burstLeft == 0 && rng.Float64() < cfg.BurstProbability {
			burstLeft = 3 + rng.IntN(6)
			burstLong = rng.IntN(2) == 0
		}
		inBurst := burstLeft > 0
		if inBurst {
			// longs liquidated means forced selling
			push := tickVol * (0.5 + rng.Float64())
			if burstLong {
				ret -= push
			} else {
				ret += push
			}
		}

		open := price
		price = open * (1 + ret)

		volume := avgVolume * math.Exp(rng.NormFloat64()*0.5) * volMult * (1 + math.Abs(ret)*10)
		if inBurst {
			volume *= 2 + rng.Float64()*2
		}

		var longLiq, shortLiq float64
		if inBurst {
			forced := volume * (0.3 + rng.Float64()*0.5)
			if burstLong {
				longLiq = forced
			} else {
				shortLiq = forced
			}
			burstLeft--
		} else {
			noise := volume * rng.Float64() * 0.04
			split := rng.Float64()
			longLiq, shortLiq = noise*split, noise*(1-split)
		}

		wick := tickVol * volMult * (0.5 + rng.Float64()*1.5)
		high := math.Max(open, price) * (1 + math.Abs(rng.NormFloat64())*wick*0.4)
		low := math.Min(open, price) * (1 - math.Abs(rng.NormFloat64())*wick*0.4)

		ticks = append(ticks, domain.Tick{
			Instrument:        cfg.Instrument,
			Timestamp:         ts,
			Bid:               price * (1 - halfSpread),
			Ask:               price * (1 + halfSpread),
			Last:              price,
			Volume:            volume,
			High:              high,
			Low:               low,
			LongLiquidations:  longLiq,
			ShortLiquidations: shortLiq,
		})
	}
	return ticks
}

// regime draws down/flat/up with probabilities 0.3/0.4/0.3.
func regime(rng *rand.Rand) float64 {
	switch p := rng.Float64(); {
	case p < 0.3:
		return -1
	case p < 0.7:
		return 0
	default:
		return 1
	}
}

// sessionVolatility scales volatility by hour of day (UTC): EU/US overlap
// is busiest, late US the quietest.
func sessionVolatility(hour int) float64 {
	switch {
	case hour >= 8 && hour <= 16:
		return 1.3
	case hour < 8:
		return 1.1
	default:
		return 0.8
	}
}
