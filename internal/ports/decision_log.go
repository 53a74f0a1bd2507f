package ports

import (
	"context"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// DecisionLog is the append-only audit trail of the engine.
type DecisionLog interface {
	// Append serialises payload, assigns the next sequence number and makes
	// the entry durable before returning.
	Append(ctx context.Context, category domain.LogCategory, payload any) (uint64, error)

	// Replay calls fn for every entry with Seq >= from, in order. Corrupt or
	// missing entries stop the replay with a *domain.IntegrityError.
	Replay(ctx context.Context, from uint64, fn func(domain.LogEntry) error) error

	// LastSeq returns the sequence of the last appended entry, 0 if empty.
	LastSeq() uint64

	// Sync flushes buffered entries to stable storage.
	Sync() error

	Close() error
}
