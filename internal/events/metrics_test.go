package events_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/events"
)

func TestMetrics_ExportsEngineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	bus := events.New(events.DefaultConfig(), nil)
	events.NewMetrics(reg, bus)

	bus.Publish(domain.Event{Type: domain.EventFill, Payload: domain.PositionOpened{Fill: domain.FillResult{SlippageBps: 3}}})
	bus.Publish(domain.Event{Type: domain.EventPositionClosed, Payload: domain.Trade{ExitReason: domain.ExitTakeProfit, RealizedPnL: 12.5}})
	bus.Publish(domain.Event{Type: domain.EventRiskDecision, Payload: domain.RiskDecision{Action: domain.RiskReduce, Reason: domain.RiskPositionTooLarge}})
	bus.Publish(domain.Event{Type: domain.EventStateChange, Payload: domain.StateChange{To: domain.StateFrozen}})
	bus.Close()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tradecore_events_total"])
	assert.True(t, names["tradecore_bus_published_total"])
	assert.True(t, names["tradecore_bus_latency_seconds"])

	count, err := testutil.GatherAndCount(reg, "tradecore_positions_closed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "tradecore_events_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestMetrics_OpenPositionsFollowsEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	bus := events.New(events.DefaultConfig(), nil)
	m := events.NewMetrics(reg, bus)
	open := 2 // restored from the log, no FILL events seen
	m.WatchOpenPositions(func() int { return open })

	bus.Publish(domain.Event{Type: domain.EventPositionClosed, Payload: domain.Trade{ExitReason: domain.ExitStopLoss}})
	bus.Publish(domain.Event{Type: domain.EventPositionClosed, Payload: domain.Trade{ExitReason: domain.ExitStopLoss}})
	bus.Publish(domain.Event{Type: domain.EventPositionClosed, Payload: domain.Trade{ExitReason: domain.ExitStopLoss}})
	bus.Close()
	open = 0

	expected := `
# HELP tradecore_open_positions Currently open positions
# TYPE tradecore_open_positions gauge
tradecore_open_positions 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tradecore_open_positions"))

	open = 1
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "tradecore_open_positions" {
			assert.Equal(t, 1.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
