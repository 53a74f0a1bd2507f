package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
	"golang.org/x/time/rate"
)

// Paced replays a source at a fixed rate, the way a live feed would hand
// ticks over. Each tick is stamped with its arrival time so the sanitizer
// can measure ingestion latency.
type Paced struct {
	src     ports.TickSource
	limiter *rate.Limiter
	now     func() time.Time
}

// NewPaced limits src to perSecond ticks with the given burst. perSecond
// <= 0 disables pacing. now may be nil.
func NewPaced(src ports.TickSource, perSecond float64, burst int, now func() time.Time) *Paced {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Paced{src: src, limiter: rate.NewLimiter(limit, burst), now: now}
}

// Next implements ports.TickSource.
func (p *Paced) Next(ctx context.Context) (domain.Tick, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Tick{}, fmt.Errorf("feed.Paced.Next: rate limiter: %w", err)
	}
	t, err := p.src.Next(ctx)
	if err != nil {
		return domain.Tick{}, err
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = p.now().UTC()
	}
	return t, nil
}

// Rebase shifts every timestamp by the same offset so the first tick lands
// at now(). A recording replayed through it looks live to the latency and
// staleness checks; spacing between ticks is preserved.
type Rebase struct {
	src    ports.TickSource
	now    func() time.Time
	offset time.Duration
	set    bool
}

// NewRebase wraps src. now may be nil.
func NewRebase(src ports.TickSource, now func() time.Time) *Rebase {
	if now == nil {
		now = time.Now
	}
	return &Rebase{src: src, now: now}
}

// Next implements ports.TickSource.
func (r *Rebase) Next(ctx context.Context) (domain.Tick, error) {
	t, err := r.src.Next(ctx)
	if err != nil {
		return domain.Tick{}, err
	}
	if !r.set {
		r.offset = r.now().Sub(t.Timestamp)
		r.set = true
	}
	t.Timestamp = t.Timestamp.Add(r.offset).UTC()
	return t, nil
}

// Queue is a bounded hand-off between the feed lane and the engine lane.
// Send blocks when the queue is full: ticks are never dropped, the feed
// slows down instead.
type Queue struct {
	ch chan domain.Tick

	mu  sync.Mutex
	err error
}

// NewQueue creates a queue holding up to size ticks.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan domain.Tick, size)}
}

// Pump copies src into the queue until src is exhausted, fails or ctx is
// cancelled, then closes the queue. A clean EOF returns nil.
func (q *Queue) Pump(ctx context.Context, src ports.TickSource) error {
	defer close(q.ch)
	n := 0
	for {
		t, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			slog.Info("feed: source exhausted", "ticks", n)
			return nil
		}
		if err != nil {
			q.fail(err)
			return fmt.Errorf("feed.Queue.Pump: %w", err)
		}
		select {
		case q.ch <- t:
			n++
		case <-ctx.Done():
			q.fail(ctx.Err())
			return fmt.Errorf("feed.Queue.Pump: %w", ctx.Err())
		}
	}
}

func (q *Queue) fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// Next implements ports.TickSource. After the queue drains it returns
// io.EOF, or the error that stopped the pump.
func (q *Queue) Next(ctx context.Context) (domain.Tick, error) {
	select {
	case t, ok := <-q.ch:
		if ok {
			return t, nil
		}
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.err != nil {
			return domain.Tick{}, q.err
		}
		return domain.Tick{}, io.EOF
	case <-ctx.Done():
		return domain.Tick{}, ctx.Err()
	}
}

// Len is the number of ticks waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Cap is the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
