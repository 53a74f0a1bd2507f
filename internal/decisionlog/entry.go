// Package decisionlog is the engine's write-ahead audit trail: one JSON
// object per line, each carrying a sequence number and a SHA-256 checksum
// of its payload.
package decisionlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Checksum is the hex SHA-256 of the serialized payload.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func newEntry(seq uint64, ts time.Time, cat domain.LogCategory, payload any) (domain.LogEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("decisionlog: marshal %s payload: %w", cat, err)
	}
	return domain.LogEntry{
		Seq:       seq,
		Timestamp: ts.UTC(),
		Category:  cat,
		Payload:   raw,
		Checksum:  Checksum(raw),
	}, nil
}

// verify checks one entry against the sequence it should carry.
func verify(e domain.LogEntry, want uint64, line int) error {
	if e.Seq != want {
		return &domain.IntegrityError{Seq: e.Seq, Line: line, Reason: fmt.Sprintf("sequence gap: want %d", want)}
	}
	if e.Category == "" {
		return &domain.IntegrityError{Seq: e.Seq, Line: line, Reason: "missing category"}
	}
	if got := Checksum(e.Payload); got != e.Checksum {
		return &domain.IntegrityError{Seq: e.Seq, Line: line, Reason: "checksum mismatch"}
	}
	return nil
}
