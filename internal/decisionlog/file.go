package decisionlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// maxLineBytes bounds a single entry when reading the log back.
const maxLineBytes = 4 << 20

// Options tune a FileLog.
type Options struct {
	// NoSync skips the fsync after each append. Entries still reach the OS
	// before Append returns.
	NoSync bool
	// Clock stamps entries. Defaults to time.Now.
	Clock func() time.Time
}

// FileLog is an append-only JSONL decision log.
type FileLog struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	w     *bufio.Writer
	seq   uint64
	opts  Options
	clock func() time.Time
}

// Open opens (or creates) the log at path. An existing log is verified end
// to end; numbering resumes after its last entry. A corrupt log is not
// opened for writing: the caller gets the *domain.IntegrityError.
func Open(path string, opts Options) (*FileLog, error) {
	last, err := scanLast(path)
	if err != nil {
		return nil, fmt.Errorf("decisionlog.Open: verify %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("decisionlog.Open: open %q: %w", path, err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	slog.Debug("decisionlog: opened", "path", path, "last_seq", last, "fsync", !opts.NoSync)
	return &FileLog{
		path:  path,
		f:     f,
		w:     bufio.NewWriter(f),
		seq:   last,
		opts:  opts,
		clock: clock,
	}, nil
}

func scanLast(path string) (uint64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var last uint64
	err = readEntries(f, func(e domain.LogEntry) error {
		last = e.Seq
		return nil
	})
	return last, err
}

// readEntries verifies and yields every entry of r in order.
func readEntries(r io.Reader, fn func(domain.LogEntry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var line int
	var want uint64 = 1
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			return &domain.IntegrityError{Seq: want, Line: line, Reason: "empty line"}
		}
		var e domain.LogEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return &domain.IntegrityError{Seq: want, Line: line, Reason: "malformed entry: " + err.Error()}
		}
		if err := verify(e, want, line); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		want++
	}
	if err := sc.Err(); err != nil {
		return &domain.IntegrityError{Seq: want, Line: line + 1, Reason: "read: " + err.Error()}
	}
	return nil
}

// Append writes the entry and, unless NoSync is set, fsyncs before returning.
// The sequence number only advances once the write succeeded.
func (l *FileLog) Append(ctx context.Context, cat domain.LogCategory, payload any) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("decisionlog.Append: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return 0, fmt.Errorf("decisionlog.Append: %w", os.ErrClosed)
	}
	e, err := newEntry(l.seq+1, l.clock(), cat, payload)
	if err != nil {
		return 0, fmt.Errorf("decisionlog.Append: %w", err)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("decisionlog.Append: marshal entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := l.w.Write(line); err != nil {
		return 0, fmt.Errorf("decisionlog.Append: write: %w", err)
	}
	if err := l.flushLocked(!l.opts.NoSync); err != nil {
		return 0, fmt.Errorf("decisionlog.Append: %w", err)
	}
	l.seq = e.Seq
	return e.Seq, nil
}

func (l *FileLog) flushLocked(fsync bool) error {
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if fsync {
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("fsync: %w", err)
		}
	}
	return nil
}

// Replay reads the file from the start, verifying every entry, and calls fn
// for entries with Seq >= from.
func (l *FileLog) Replay(ctx context.Context, from uint64, fn func(domain.LogEntry) error) error {
	l.mu.Lock()
	if l.f != nil {
		if err := l.flushLocked(false); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("decisionlog.Replay: %w", err)
		}
	}
	l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("decisionlog.Replay: open %q: %w", l.path, err)
	}
	defer f.Close()

	return readEntries(f, func(e domain.LogEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.Seq < from {
			return nil
		}
		return fn(e)
	})
}

// LastSeq returns the last written sequence number.
func (l *FileLog) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Sync flushes and fsyncs.
func (l *FileLog) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	if err := l.flushLocked(true); err != nil {
		return fmt.Errorf("decisionlog.Sync: %w", err)
	}
	return nil
}

// Close syncs and closes the file. Further appends fail.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.flushLocked(true)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	if err != nil {
		return fmt.Errorf("decisionlog.Close: %w", err)
	}
	return nil
}

// Verify checks a log file without opening it for writing and returns the
// number of valid entries.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("decisionlog.Verify: open %q: %w", path, err)
	}
	defer f.Close()
	var n int
	err = readEntries(f, func(domain.LogEntry) error {
		n++
		return nil
	})
	return n, err
}
