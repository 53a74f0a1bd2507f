// Package costmodel prices simulated fills: maker/taker fee tiers and
// volume-dependent slippage that always works against the trader.
package costmodel

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// pricePlaces bounds the precision of simulated fill prices.
const pricePlaces = 8

// FeeSchedule is the maker/taker fee pair of a venue, as fractions of notional.
type FeeSchedule struct {
	Maker float64
	Taker float64
}

// Venues are the built-in fee schedules.
var Venues = map[string]FeeSchedule{
	"binance": {Maker: 0.0010, Taker: 0.0010},
	"kraken":  {Maker: 0.0016, Taker: 0.0026},
	"okx":     {Maker: 0.0008, Taker: 0.0010},
}

// Config parametrises the model.
type Config struct {
	Fees              FeeSchedule
	BaseSlippageBps   float64
	ImpactCoefficient float64 // bps per unit of notional/ReferenceVolume
	ReferenceVolume   float64 // <= 0 disables the impact term
	MinFee            float64
}

// DefaultConfig uses the binance schedule.
func DefaultConfig() Config {
	return Config{
		Fees:              Venues["binance"],
		BaseSlippageBps:   1,
		ImpactCoefficient: 10,
		ReferenceVolume:   1_000_000,
	}
}

// ScheduleFor looks up a venue schedule, applying non-zero overrides.
func ScheduleFor(venue string, makerOverride, takerOverride float64) (FeeSchedule, error) {
	fs, ok := Venues[strings.ToLower(venue)]
	if !ok {
		return FeeSchedule{}, fmt.Errorf("costmodel.ScheduleFor: unknown venue %q", venue)
	}
	if makerOverride > 0 {
		fs.Maker = makerOverride
	}
	if takerOverride > 0 {
		fs.Taker = takerOverride
	}
	return fs, nil
}

// Model is deterministic and stateless.
type Model struct {
	cfg Config
}

// New creates a Model.
func New(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Config returns the model parameters.
func (m *Model) Config() Config { return m.cfg }

// IsMaker reports whether a limit order rests on the book instead of
// crossing the opposite best price. Market orders are always taker.
func IsMaker(o domain.Order, book domain.BookState) bool {
	if o.Type == domain.Market {
		return false
	}
	switch o.Side {
	case domain.Buy:
		ask := book.BestAsk()
		return ask <= 0 || o.Price < ask
	case domain.Sell:
		bid := book.BestBid()
		return bid <= 0 || o.Price > bid
	}
	return false
}

// SlippageBps is base + (notional/referenceVolume) × impact.
func (m *Model) SlippageBps(notional float64) float64 {
	bps := decimal.NewFromFloat(m.cfg.BaseSlippageBps)
	if m.cfg.ReferenceVolume > 0 && notional > 0 {
		impact := decimal.NewFromFloat(notional).
			Div(decimal.NewFromFloat(m.cfg.ReferenceVolume)).
			Mul(decimal.NewFromFloat(m.cfg.ImpactCoefficient))
		bps = bps.Add(impact)
	}
	f, _ := bps.Float64()
	return f
}

// SimulateFill prices order against book. Takers fill at the requested
// price moved by slippage in the adverse direction; makers fill at the
// requested price. Market orders request the opposite best price.
func (m *Model) SimulateFill(o domain.Order, book domain.BookState) (domain.FillResult, error) {
	if o.Size <= 0 {
		return domain.FillResult{}, fmt.Errorf("costmodel.SimulateFill: size %g: %w", o.Size, domain.ErrRiskViolation)
	}
	requested := o.Price
	if o.Type == domain.Market || requested <= 0 {
		if o.Side == domain.Buy {
			requested = book.BestAsk()
		} else {
			requested = book.BestBid()
		}
	}
	if requested <= 0 {
		return domain.FillResult{}, fmt.Errorf("costmodel.SimulateFill: no price for %s %s: %w", o.Side, o.Instrument, domain.ErrDataQuality)
	}

	maker := IsMaker(o, book)
	px := decimal.NewFromFloat(requested)
	size := decimal.NewFromFloat(o.Size)
	res := domain.FillResult{Size: o.Size, IsMaker: maker}

	rate := m.cfg.Fees.Taker
	if maker {
		rate = m.cfg.Fees.Maker
	} else {
		bps := m.SlippageBps(px.Mul(size).InexactFloat64())
		shift := decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10_000))
		if o.Side == domain.Buy {
			px = px.Mul(decimal.NewFromInt(1).Add(shift)).RoundCeil(pricePlaces)
		} else {
			px = px.Mul(decimal.NewFromInt(1).Sub(shift)).RoundFloor(pricePlaces)
		}
		res.SlippageBps = bps
	}

	notional := px.Mul(size)
	fee := notional.Mul(decimal.NewFromFloat(rate))
	if minFee := decimal.NewFromFloat(m.cfg.MinFee); fee.LessThan(minFee) {
		fee = minFee
	}

	res.Price = px.InexactFloat64()
	res.Notional = notional.InexactFloat64()
	res.Fee = fee.InexactFloat64()
	res.FeeRate = rate
	return res, nil
}

// RoundTrip is a pre-trade cost estimate for opening and closing a position.
type RoundTrip struct {
	EntryFee     float64
	ExitFee      float64
	SlippageCost float64
	TotalCost    float64
	CostBps      float64
}

// EstimateRoundTrip prices a taker entry and a taker exit at the same
// reference price. It is what transaction cost analysis compares realized
// costs against.
func (m *Model) EstimateRoundTrip(notional float64) RoundTrip {
	if notional <= 0 {
		return RoundTrip{}
	}
	n := decimal.NewFromFloat(notional)
	taker := decimal.NewFromFloat(m.cfg.Fees.Taker)
	slip := decimal.NewFromFloat(m.SlippageBps(notional)).Div(decimal.NewFromInt(10_000)).Mul(n)

	entry := n.Mul(taker)
	exit := n.Mul(taker)
	if minFee := decimal.NewFromFloat(m.cfg.MinFee); entry.LessThan(minFee) {
		entry, exit = minFee, minFee
	}
	total := entry.Add(exit).Add(slip.Mul(decimal.NewFromInt(2)))
	return RoundTrip{
		EntryFee:     entry.InexactFloat64(),
		ExitFee:      exit.InexactFloat64(),
		SlippageCost: slip.Mul(decimal.NewFromInt(2)).InexactFloat64(),
		TotalCost:    total.InexactFloat64(),
		CostBps:      total.Div(n).Mul(decimal.NewFromInt(10_000)).InexactFloat64(),
	}
}
