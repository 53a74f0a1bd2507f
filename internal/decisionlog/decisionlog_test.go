package decisionlog_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/tradecore/internal/decisionlog"
	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return ts }

func openLog(t *testing.T, path string) *decisionlog.FileLog {
	t.Helper()
	l, err := decisionlog.Open(path, decisionlog.Options{Clock: fixedClock})
	require.NoError(t, err)
	return l
}

func collect(t *testing.T, replay func(context.Context, uint64, func(domain.LogEntry) error) error, from uint64) ([]domain.LogEntry, error) {
	t.Helper()
	var out []domain.LogEntry
	err := replay(context.Background(), from, func(e domain.LogEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func TestFileLog_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l := openLog(t, path)
	defer l.Close()
	ctx := context.Background()

	seq, err := l.Append(ctx, domain.LogSignal, domain.Signal{Instrument: "ETH", Direction: domain.Long, Confidence: 0.7})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	seq, err = l.Append(ctx, domain.LogStateChange, domain.StateChange{From: domain.StateStopped, To: domain.StateRunning})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	entries, err := collect(t, l.Replay, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.LogSignal, entries[0].Category)

	var sig domain.Signal
	require.NoError(t, entries[0].Decode(&sig))
	assert.Equal(t, "ETH", sig.Instrument)

	tail, err := collect(t, l.Replay, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Seq)
}

func TestFileLog_IsOneJSONObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l := openLog(t, path)
	_, err := l.Append(context.Background(), domain.LogError, domain.ErrorInfo{Message: "boom <html>"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"seq":1`)
	assert.Contains(t, lines[0], `"category":"ERROR"`)
	assert.Contains(t, lines[0], `"checksum":"`)
}

func TestFileLog_ReopenResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l := openLog(t, path)
	for i := 0; i < 3; i++ {
		_, err := l.Append(context.Background(), domain.LogSignal, domain.Signal{})
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	l = openLog(t, path)
	defer l.Close()
	assert.Equal(t, uint64(3), l.LastSeq())

	seq, err := l.Append(context.Background(), domain.LogSignal, domain.Signal{})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)

	n, err := decisionlog.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestFileLog_DetectsChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l := openLog(t, path)
	_, err := l.Append(context.Background(), domain.LogSignal, domain.Signal{Instrument: "BTC", Confidence: 0.5})
	require.NoError(t, err)
	_, err = l.Append(context.Background(), domain.LogSignal, domain.Signal{Instrument: "BTC", Confidence: 0.6})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"confidence":0.6`, `"confidence":0.9`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = decisionlog.Verify(path)
	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, uint64(2), ie.Seq)
	assert.Equal(t, 2, ie.Line)
	assert.Contains(t, ie.Reason, "checksum")
	assert.ErrorIs(t, err, domain.ErrIntegrity)

	_, err = decisionlog.Open(path, decisionlog.Options{})
	assert.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestFileLog_DetectsTruncatedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l := openLog(t, path)
	_, err := l.Append(context.Background(), domain.LogSignal, domain.Signal{})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"ts":"2024-`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = decisionlog.Verify(path)
	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 2, ie.Line)
	assert.Contains(t, ie.Reason, "malformed")
}

func TestFileLog_DetectsSequenceGap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l := openLog(t, path)
	for i := 0; i < 3; i++ {
		_, err := l.Append(context.Background(), domain.LogSignal, domain.Signal{})
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	require.NoError(t, os.WriteFile(path, []byte(lines[0]+lines[2]), 0o644))

	_, err = decisionlog.Verify(path)
	var ie *domain.IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Reason, "sequence gap")
}

func TestFileLog_AppendAfterClose(t *testing.T) {
	l := openLog(t, filepath.Join(t.TempDir(), "d.jsonl"))
	require.NoError(t, l.Close())
	_, err := l.Append(context.Background(), domain.LogSignal, domain.Signal{})
	assert.Error(t, err)
	assert.NoError(t, l.Close())
}

func TestMemoryLog_ReplayFrom(t *testing.T) {
	m := decisionlog.NewMemory(fixedClock)
	for i := 0; i < 5; i++ {
		_, err := m.Append(context.Background(), domain.LogSignal, domain.Signal{Confidence: float64(i) / 10})
		require.NoError(t, err)
	}
	entries, err := collect(t, m.Replay, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[0].Seq)
	assert.Equal(t, ts, entries[0].Timestamp)
	assert.Equal(t, uint64(5), m.LastSeq())
}

func TestMemoryLog_CancelledContext(t *testing.T) {
	m := decisionlog.NewMemory(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Append(ctx, domain.LogSignal, domain.Signal{})
	assert.ErrorIs(t, err, context.Canceled)
}
