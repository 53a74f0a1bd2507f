package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// TypeStats is the aggregate view of one event type.
type TypeStats struct {
	Count      int64
	Dropped    int64
	Panics     int64
	Delivered  int64
	RatePerSec float64
	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
}

// typeStats keeps per-second publish buckets for the sliding rate and
// running latency aggregates.
type typeStats struct {
	count   atomic.Int64
	dropped atomic.Int64
	panics  atomic.Int64

	mu        sync.Mutex
	window    time.Duration
	buckets   []int64
	stamps    []int64 // unix second each bucket belongs to
	delivered int64
	latSum    time.Duration
	latMin    time.Duration
	latMax    time.Duration
}

func newTypeStats(window time.Duration) *typeStats {
	n := int(window / time.Second)
	if n < 1 {
		n = 1
	}
	return &typeStats{
		window:  window,
		buckets: make([]int64, n),
		stamps:  make([]int64, n),
	}
}

func (s *typeStats) published(at time.Time) {
	s.count.Add(1)
	sec := at.Unix()
	i := int(sec % int64(len(s.buckets)))
	if i < 0 {
		i += len(s.buckets)
	}
	s.mu.Lock()
	if s.stamps[i] != sec {
		s.stamps[i] = sec
		s.buckets[i] = 0
	}
	s.buckets[i]++
	s.mu.Unlock()
}

func (s *typeStats) observe(lat time.Duration) {
	if lat < 0 {
		lat = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered == 0 || lat < s.latMin {
		s.latMin = lat
	}
	if lat > s.latMax {
		s.latMax = lat
	}
	s.delivered++
	s.latSum += lat
}

func (s *typeStats) snapshot(now time.Time) TypeStats {
	st := TypeStats{
		Count:   s.count.Load(),
		Dropped: s.dropped.Load(),
		Panics:  s.panics.Load(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Unix() - int64(len(s.buckets))
	var inWindow int64
	for i, stamp := range s.stamps {
		if stamp > cutoff {
			inWindow += s.buckets[i]
		}
	}
	st.RatePerSec = float64(inWindow) / s.window.Seconds()
	st.Delivered = s.delivered
	st.MinLatency = s.latMin
	st.MaxLatency = s.latMax
	if s.delivered > 0 {
		st.AvgLatency = s.latSum / time.Duration(s.delivered)
	}
	return st
}

// Stats returns the aggregates of every event type seen so far.
func (b *Bus) Stats() map[domain.EventType]TypeStats {
	now := b.now()
	b.statsMu.Lock()
	types := make(map[domain.EventType]*typeStats, len(b.stats))
	for t, st := range b.stats {
		types[t] = st
	}
	b.statsMu.Unlock()

	out := make(map[domain.EventType]TypeStats, len(types))
	for t, st := range types {
		out[t] = st.snapshot(now)
	}
	return out
}
