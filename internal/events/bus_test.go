package events_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversByType(t *testing.T) {
	bus := events.New(events.DefaultConfig(), nil)

	var signals, all atomic.Int64
	bus.Subscribe(domain.EventSignal, func(domain.Event) { signals.Add(1) })
	bus.SubscribeAll(func(domain.Event) { all.Add(1) })

	bus.Publish(domain.Event{Type: domain.EventSignal})
	bus.Publish(domain.Event{Type: domain.EventFill})
	bus.Publish(domain.Event{Type: domain.EventSignal})
	bus.Close()

	assert.Equal(t, int64(2), signals.Load())
	assert.Equal(t, int64(3), all.Load())

	st := bus.Stats()
	assert.Equal(t, int64(2), st[domain.EventSignal].Count)
	assert.Equal(t, int64(1), st[domain.EventFill].Count)
}

func TestBus_SlowSubscriberDropsOnlyItsOwn(t *testing.T) {
	bus := events.New(events.Config{QueueSize: 2, RateWindow: time.Second}, nil)

	release := make(chan struct{})
	var fast atomic.Int64
	bus.Subscribe(domain.EventTickReceived, func(domain.Event) { <-release })
	bus.Subscribe(domain.EventTickReceived, func(domain.Event) { fast.Add(1) })

	start := time.Now()
	for i := 0; i < 50; i++ {
		bus.Publish(domain.Event{Type: domain.EventTickReceived})
		// keep the fast subscriber's queue from filling up
		require.Eventually(t, func() bool { return fast.Load() == int64(i+1) }, time.Second, time.Millisecond)
	}
	assert.Less(t, time.Since(start), 5*time.Second)

	st := bus.Stats()[domain.EventTickReceived]
	assert.Equal(t, int64(50), st.Count)
	assert.Greater(t, st.Dropped, int64(40))

	var slowDepth int
	for _, s := range bus.Subscribers() {
		if s.Dropped > 0 {
			slowDepth = s.Depth
		}
	}
	assert.Equal(t, 2, slowDepth)

	close(release)
	bus.Close()
	assert.Equal(t, int64(50), fast.Load())
}

func TestBus_LatencyStats(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := base
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	bus := events.New(events.DefaultConfig(), clock)
	bus.Subscribe(domain.EventFill, func(domain.Event) {})

	mu.Lock()
	now = base.Add(30 * time.Millisecond)
	mu.Unlock()
	bus.Publish(domain.Event{Type: domain.EventFill, CreatedAt: base})
	bus.Publish(domain.Event{Type: domain.EventFill, CreatedAt: base.Add(20 * time.Millisecond)})
	bus.Close()

	st := bus.Stats()[domain.EventFill]
	assert.Equal(t, int64(2), st.Delivered)
	assert.Equal(t, 10*time.Millisecond, st.MinLatency)
	assert.Equal(t, 30*time.Millisecond, st.MaxLatency)
	assert.Equal(t, 20*time.Millisecond, st.AvgLatency)
	assert.InDelta(t, 2.0/60.0, st.RatePerSec, 1e-9)
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := events.New(events.DefaultConfig(), nil)
	var after atomic.Int64
	bus.Subscribe(domain.EventError, func(e domain.Event) {
		if e.Reason == domain.ErrorUnknown {
			panic("boom")
		}
		after.Add(1)
	})

	bus.Publish(domain.Event{Type: domain.EventError, Reason: domain.ErrorUnknown})
	bus.Publish(domain.Event{Type: domain.EventError, Reason: domain.ErrorDataStale})
	bus.Close()

	assert.Equal(t, int64(1), after.Load())
	assert.Equal(t, int64(1), bus.Stats()[domain.EventError].Panics)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := events.New(events.DefaultConfig(), nil)
	var n atomic.Int64
	unsub := bus.Subscribe(domain.EventSignal, func(domain.Event) { n.Add(1) })

	bus.Publish(domain.Event{Type: domain.EventSignal})
	unsub()
	unsub()
	bus.Publish(domain.Event{Type: domain.EventSignal})
	bus.Close()

	assert.Equal(t, int64(1), n.Load())
	assert.Empty(t, bus.Subscribers())
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	bus := events.New(events.DefaultConfig(), nil)
	bus.Close()
	assert.NotPanics(t, func() { bus.Publish(domain.Event{Type: domain.EventFill}) })
	bus.Close()
}
