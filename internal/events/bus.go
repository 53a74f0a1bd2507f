// Package events is the engine's fan-out notification bus. Every
// subscription owns a bounded queue and a goroutine, so a slow subscriber
// only ever backs up its own queue.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Handler consumes events on the subscription's goroutine.
type Handler func(domain.Event)

// Config sizes the bus.
type Config struct {
	QueueSize  int           // per subscription
	RateWindow time.Duration // sliding window for the per-type rate
}

// DefaultConfig returns a 1024-deep queue and a one minute rate window.
func DefaultConfig() Config {
	return Config{QueueSize: 1024, RateWindow: time.Minute}
}

type subscription struct {
	id      uint64
	typ     domain.EventType // empty: every type
	ch      chan domain.Event
	handler Handler
	dropped atomic.Int64
	handled atomic.Int64
}

// Bus implements ports.Publisher.
type Bus struct {
	cfg Config
	now func() time.Time

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   map[domain.EventType]*typeStats
}

// New creates a bus. now defaults to time.Now.
func New(cfg Config, now func() time.Time) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultConfig().RateWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Bus{
		cfg:   cfg,
		now:   now,
		subs:  make(map[uint64]*subscription),
		stats: make(map[domain.EventType]*typeStats),
	}
}

// Subscribe registers handler for one event type. The returned function
// removes the subscription; events still queued are delivered first.
func (b *Bus) Subscribe(typ domain.EventType, handler Handler) func() {
	return b.subscribe(typ, handler)
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) func() {
	return b.subscribe("", handler)
}

func (b *Bus) subscribe(typ domain.EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	s := &subscription{
		id:      b.nextID,
		typ:     typ,
		ch:      make(chan domain.Event, b.cfg.QueueSize),
		handler: handler,
	}
	b.subs[s.id] = s
	b.wg.Add(1)
	go b.run(s)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[s.id]; ok {
				delete(b.subs, s.id)
				close(s.ch)
			}
		})
	}
}

// Publish enqueues e for every matching subscriber without blocking. A full
// queue drops the event for that subscriber only.
func (b *Bus) Publish(e domain.Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = b.now()
	}
	b.typeStats(e.Type).published(b.now())

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.typ != "" && s.typ != e.Type {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			b.typeStats(e.Type).dropped.Add(1)
		}
	}
}

func (b *Bus) run(s *subscription) {
	defer b.wg.Done()
	for e := range s.ch {
		b.typeStats(e.Type).observe(b.now().Sub(e.CreatedAt))
		b.invoke(s, e)
	}
}

func (b *Bus) invoke(s *subscription, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.typeStats(e.Type).panics.Add(1)
			slog.Error("events: handler panic", "type", e.Type, "subscription", s.id, "panic", fmt.Sprint(r))
		}
	}()
	s.handler(e)
	s.handled.Add(1)
}

// Close stops accepting events and waits until every queue is drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bus) typeStats(t domain.EventType) *typeStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	st, ok := b.stats[t]
	if !ok {
		st = newTypeStats(b.cfg.RateWindow)
		b.stats[t] = st
	}
	return st
}

// SubscriberStats describes one subscription's queue.
type SubscriberStats struct {
	ID      uint64
	Type    domain.EventType
	Depth   int
	Handled int64
	Dropped int64
}

// Subscribers returns the queue state of every live subscription.
func (b *Bus) Subscribers() []SubscriberStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SubscriberStats, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, SubscriberStats{
			ID:      s.id,
			Type:    s.typ,
			Depth:   len(s.ch),
			Handled: s.handled.Load(),
			Dropped: s.dropped.Load(),
		})
	}
	return out
}
