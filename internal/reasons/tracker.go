// Package reasons attributes decisions to reason codes and aggregates how
// each code performs over a bounded retention window.
package reasons

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ringbuf"
)

// Record is one retained observation.
type Record struct {
	Reason  domain.Reason
	Outcome domain.Outcome
	At      time.Time
}

type aggregate struct {
	count, wins, losses, blocked int
	totalPnL                     float64
}

func (a *aggregate) add(o domain.Outcome, sign int) {
	a.count += sign
	switch o.Kind {
	case domain.OutcomeWin:
		a.wins += sign
	case domain.OutcomeLoss:
		a.losses += sign
	case domain.OutcomeBlocked:
		a.blocked += sign
	}
	a.totalPnL += float64(sign) * o.PnL
}

// Tracker keeps the last N records and running aggregates per code, so
// Stats is O(1) regardless of how much history has flowed through.
type Tracker struct {
	mu   sync.RWMutex
	ring *ringbuf.Ring[Record]
	agg  map[domain.Reason]*aggregate
}

// New creates a Tracker retaining at most retention records.
func New(retention int) *Tracker {
	return &Tracker{
		ring: ringbuf.New[Record](retention),
		agg:  make(map[domain.Reason]*aggregate),
	}
}

// Record attributes outcome to code. Codes outside the closed enumeration
// are refused.
func (t *Tracker) Record(code domain.Reason, outcome domain.Outcome, at time.Time) error {
	if !code.Valid() {
		return fmt.Errorf("reasons.Record: unknown reason code %q", code)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, evicted := t.ring.Push(Record{Reason: code, Outcome: outcome, At: at}); evicted {
		a := t.agg[old.Reason]
		a.add(old.Outcome, -1)
		if a.count == 0 {
			delete(t.agg, old.Reason)
		}
	}
	a, ok := t.agg[code]
	if !ok {
		a = &aggregate{}
		t.agg[code] = a
	}
	a.add(outcome, +1)
	return nil
}

// Stats returns the aggregate for code over the retention window.
func (t *Tracker) Stats(code domain.Reason) domain.ReasonStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statsLocked(code)
}

func (t *Tracker) statsLocked(code domain.Reason) domain.ReasonStats {
	st := domain.ReasonStats{Reason: code}
	a, ok := t.agg[code]
	if !ok {
		return st
	}
	st.Count = a.count
	st.Wins = a.wins
	st.Losses = a.losses
	st.Blocked = a.blocked
	st.TotalPnL = a.totalPnL
	if decided := a.wins + a.losses; decided > 0 {
		st.WinRate = float64(a.wins) / float64(decided)
	}
	if a.count > 0 {
		st.AvgPnL = a.totalPnL / float64(a.count)
	}
	return st
}

// Summary returns stats for every code seen in the window.
func (t *Tracker) Summary() map[domain.Reason]domain.ReasonStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[domain.Reason]domain.ReasonStats, len(t.agg))
	for code := range t.agg {
		out[code] = t.statsLocked(code)
	}
	return out
}

// ByCategory sums the stats of every code in a category.
func (t *Tracker) ByCategory(cat domain.ReasonCategory) domain.ReasonStats {
	var st domain.ReasonStats
	var decided int
	for code, s := range t.Summary() {
		if code.Category() != cat {
			continue
		}
		st.Count += s.Count
		st.Wins += s.Wins
		st.Losses += s.Losses
		st.Blocked += s.Blocked
		st.TotalPnL += s.TotalPnL
		decided += s.Wins + s.Losses
	}
	if decided > 0 {
		st.WinRate = float64(st.Wins) / float64(decided)
	}
	if st.Count > 0 {
		st.AvgPnL = st.TotalPnL / float64(st.Count)
	}
	return st
}

// Best returns up to n codes with realized outcomes, highest total P&L first.
func (t *Tracker) Best(n int) []domain.ReasonStats {
	return t.ranked(n, func(a, b domain.ReasonStats) bool { return a.TotalPnL > b.TotalPnL })
}

// Worst returns up to n codes with realized outcomes, lowest total P&L first.
func (t *Tracker) Worst(n int) []domain.ReasonStats {
	return t.ranked(n, func(a, b domain.ReasonStats) bool { return a.TotalPnL < b.TotalPnL })
}

func (t *Tracker) ranked(n int, less func(a, b domain.ReasonStats) bool) []domain.ReasonStats {
	var list []domain.ReasonStats
	for _, s := range t.Summary() {
		if s.Wins+s.Losses == 0 {
			continue
		}
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].TotalPnL == list[j].TotalPnL {
			return list[i].Reason < list[j].Reason
		}
		return less(list[i], list[j])
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}

// Len is the number of retained records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ring.Len()
}
