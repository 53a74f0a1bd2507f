package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Metrics subscribes to the bus and exports engine activity to Prometheus.
type Metrics struct {
	events        *prometheus.CounterVec
	riskDecisions *prometheus.CounterVec
	closed        *prometheus.CounterVec
	realizedPnL   prometheus.Gauge
	engineState   *prometheus.GaugeVec
	fillSlippage  prometheus.Histogram

	reg         prometheus.Registerer
	unsubscribe func()
}

// NewMetrics registers the collectors on reg and subscribes to every event.
func NewMetrics(reg prometheus.Registerer, bus *Bus) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_events_total",
			Help: "Events handled by the metrics subscriber, by type",
		}, []string{"type"}),
		riskDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_risk_decisions_total",
			Help: "Risk Guard decisions by action and reason",
		}, []string{"action", "reason"}),
		closed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_positions_closed_total",
			Help: "Closed positions by exit reason",
		}, []string{"exit_reason"}),
		realizedPnL: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_realized_pnl",
			Help: "Cumulative realized P&L after fees",
		}),
		engineState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecore_engine_state",
			Help: "1 for the current engine state, 0 otherwise",
		}, []string{"state"}),
		fillSlippage: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradecore_fill_slippage_bps",
			Help:    "Simulated slippage of entry fills",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
		}),
		reg: reg,
	}
	reg.MustRegister(&busCollector{bus: bus})
	m.unsubscribe = bus.SubscribeAll(m.handle)
	return m
}

func (m *Metrics) handle(e domain.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()
	switch p := e.Payload.(type) {
	case domain.RiskDecision:
		m.riskDecisions.WithLabelValues(string(p.Action), string(p.Reason)).Inc()
	case domain.PositionOpened:
		m.fillSlippage.Observe(p.Fill.SlippageBps)
	case domain.Trade:
		m.closed.WithLabelValues(string(p.ExitReason)).Inc()
		m.realizedPnL.Add(p.RealizedPnL)
	case domain.StateChange:
		for _, s := range []domain.EngineState{domain.StateStopped, domain.StateRunning, domain.StateFrozen} {
			v := 0.0
			if s == p.To {
				v = 1
			}
			m.engineState.WithLabelValues(string(s)).Set(v)
		}
	}
}

// WatchOpenPositions exports open() as tradecore_open_positions. The value
// is read at scrape time.
func (m *Metrics) WatchOpenPositions(open func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tradecore_open_positions",
		Help: "Currently open positions",
	}, func() float64 { return float64(open()) })
}

// Close detaches the subscriber.
func (m *Metrics) Close() {
	m.unsubscribe()
}

var (
	busPublishedDesc = prometheus.NewDesc("tradecore_bus_published_total",
		"Events published on the bus", []string{"type"}, nil)
	busDroppedDesc = prometheus.NewDesc("tradecore_bus_dropped_total",
		"Events dropped because a subscriber queue was full", []string{"type"}, nil)
	busRateDesc = prometheus.NewDesc("tradecore_bus_rate_per_second",
		"Publish rate over the sliding window", []string{"type"}, nil)
	busLatencyDesc = prometheus.NewDesc("tradecore_bus_latency_seconds",
		"Delivery latency between event creation and handler invocation", []string{"type", "stat"}, nil)
)

// busCollector exports the bus's own aggregates at scrape time.
type busCollector struct {
	bus *Bus
}

func (c *busCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- busPublishedDesc
	ch <- busDroppedDesc
	ch <- busRateDesc
	ch <- busLatencyDesc
}

func (c *busCollector) Collect(ch chan<- prometheus.Metric) {
	for typ, st := range c.bus.Stats() {
		t := string(typ)
		ch <- prometheus.MustNewConstMetric(busPublishedDesc, prometheus.CounterValue, float64(st.Count), t)
		ch <- prometheus.MustNewConstMetric(busDroppedDesc, prometheus.CounterValue, float64(st.Dropped), t)
		ch <- prometheus.MustNewConstMetric(busRateDesc, prometheus.GaugeValue, st.RatePerSec, t)
		ch <- prometheus.MustNewConstMetric(busLatencyDesc, prometheus.GaugeValue, st.MinLatency.Seconds(), t, "min")
		ch <- prometheus.MustNewConstMetric(busLatencyDesc, prometheus.GaugeValue, st.MaxLatency.Seconds(), t, "max")
		ch <- prometheus.MustNewConstMetric(busLatencyDesc, prometheus.GaugeValue, st.AvgLatency.Seconds(), t, "avg")
	}
}
