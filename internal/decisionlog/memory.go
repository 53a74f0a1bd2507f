package decisionlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// MemoryLog keeps entries in memory. Backtests use it so runs share nothing
// on disk; entries are still checksummed so replay behaves like the file log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
	clock   func() time.Time
}

// NewMemory creates an empty in-memory log. A nil clock uses time.Now.
func NewMemory(clock func() time.Time) *MemoryLog {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLog{clock: clock}
}

// Append stores the entry.
func (m *MemoryLog) Append(ctx context.Context, cat domain.LogCategory, payload any) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("decisionlog.MemoryLog.Append: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := newEntry(uint64(len(m.entries))+1, m.clock(), cat, payload)
	if err != nil {
		return 0, fmt.Errorf("decisionlog.MemoryLog.Append: %w", err)
	}
	m.entries = append(m.entries, e)
	return e.Seq, nil
}

// Replay verifies and yields entries with Seq >= from.
func (m *MemoryLog) Replay(ctx context.Context, from uint64, fn func(domain.LogEntry) error) error {
	m.mu.RLock()
	snapshot := make([]domain.LogEntry, len(m.entries))
	copy(snapshot, m.entries)
	m.mu.RUnlock()

	for i, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := verify(e, uint64(i)+1, i+1); err != nil {
			return err
		}
		if e.Seq < from {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of every entry.
func (m *MemoryLog) Entries() []domain.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// LastSeq returns the last sequence number.
func (m *MemoryLog) LastSeq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.entries))
}

// Sync is a no-op.
func (m *MemoryLog) Sync() error { return nil }

// Close is a no-op.
func (m *MemoryLog) Close() error { return nil }
