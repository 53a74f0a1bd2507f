// Package feed turns recorded market data into a ports.TickSource.
package feed

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/tradecore/internal/domain"
	"github.com/alejandrodnm/tradecore/internal/ports"
)

const maxLineBytes = 1 << 20

// JSONL reads one JSON tick per line. Blank lines are ignored; lines that
// do not decode are skipped and counted.
type JSONL struct {
	sc        *bufio.Scanner
	line      int
	malformed int
}

// NewJSONL reads ticks from r.
func NewJSONL(r io.Reader) *JSONL {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &JSONL{sc: sc}
}

// Next implements ports.TickSource.
func (j *JSONL) Next(ctx context.Context) (domain.Tick, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Tick{}, err
		}
		if !j.sc.Scan() {
			if err := j.sc.Err(); err != nil {
				return domain.Tick{}, fmt.Errorf("feed.JSONL.Next: line %d: %w", j.line+1, err)
			}
			return domain.Tick{}, io.EOF
		}
		j.line++
		raw := strings.TrimSpace(j.sc.Text())
		if raw == "" {
			continue
		}
		var t domain.Tick
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			j.malformed++
			slog.Warn("feed: skipping malformed line", "line", j.line, "err", err)
			continue
		}
		t.Timestamp = t.Timestamp.UTC()
		return t, nil
	}
}

// Malformed returns how many lines were skipped.
func (j *JSONL) Malformed() int { return j.malformed }

// csvColumns are the recognised header names.
var csvColumns = []string{"instrument", "ts", "bid", "ask", "last", "volume", "high", "low", "long_liq", "short_liq"}

// CSV reads ticks from a file with a header row. Columns may come in any
// order; instrument and ts are required, the rest default to zero. ts is
// RFC 3339 or Unix milliseconds.
type CSV struct {
	r         *csv.Reader
	idx       map[string]int
	line      int
	malformed int
}

// NewCSV reads the header from r.
func NewCSV(r io.Reader) (*CSV, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("feed.NewCSV: read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range csvColumns[:2] {
		if _, ok := idx[req]; !ok {
			return nil, fmt.Errorf("feed.NewCSV: missing column %q", req)
		}
	}
	cr.FieldsPerRecord = len(header)
	return &CSV{r: cr, idx: idx, line: 1}, nil
}

// Next implements ports.TickSource.
func (c *CSV) Next(ctx context.Context) (domain.Tick, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Tick{}, err
		}
		rec, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			return domain.Tick{}, io.EOF
		}
		c.line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				c.malformed++
				slog.Warn("feed: skipping malformed row", "line", c.line, "err", err)
				continue
			}
			return domain.Tick{}, fmt.Errorf("feed.CSV.Next: line %d: %w", c.line, err)
		}
		t, err := c.parse(rec)
		if err != nil {
			c.malformed++
			slog.Warn("feed: skipping malformed row", "line", c.line, "err", err)
			continue
		}
		return t, nil
	}
}

// Malformed returns how many rows were skipped.
func (c *CSV) Malformed() int { return c.malformed }

func (c *CSV) parse(rec []string) (domain.Tick, error) {
	t := domain.Tick{Instrument: strings.TrimSpace(rec[c.idx["instrument"]])}
	ts, err := parseTimestamp(rec[c.idx["ts"]])
	if err != nil {
		return domain.Tick{}, err
	}
	t.Timestamp = ts

	fields := []*float64{&t.Bid, &t.Ask, &t.Last, &t.Volume, &t.High, &t.Low, &t.LongLiquidations, &t.ShortLiquidations}
	for i, name := range csvColumns[2:] {
		col, ok := c.idx[name]
		if !ok {
			continue
		}
		s := strings.TrimSpace(rec[col])
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Tick{}, fmt.Errorf("column %s: %w", name, err)
		}
		*fields[i] = v
	}
	return t, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}

// File is a TickSource over a file on disk.
type File struct {
	src ports.TickSource
	f   *os.File
}

// Open opens path in the given format ("jsonl" or "csv").
func Open(path, format string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed.Open: %w", err)
	}
	switch strings.ToLower(format) {
	case "jsonl", "":
		return &File{src: NewJSONL(f), f: f}, nil
	case "csv":
		c, err := NewCSV(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("feed.Open: %w", err)
		}
		return &File{src: c, f: f}, nil
	default:
		f.Close()
		return nil, fmt.Errorf("feed.Open: unknown format %q", format)
	}
}

// Next implements ports.TickSource.
func (f *File) Next(ctx context.Context) (domain.Tick, error) {
	return f.src.Next(ctx)
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}

// ReadAll drains a source into memory. Backtests use it to load a file.
func ReadAll(ctx context.Context, src ports.TickSource) ([]domain.Tick, error) {
	var ticks []domain.Tick
	for {
		t, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return ticks, nil
		}
		if err != nil {
			return nil, fmt.Errorf("feed.ReadAll: %w", err)
		}
		ticks = append(ticks, t)
	}
}

// WriteJSONL writes ticks one per line, the format NewJSONL reads.
func WriteJSONL(w io.Writer, ticks []domain.Tick) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, t := range ticks {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("feed.WriteJSONL: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("feed.WriteJSONL: %w", err)
	}
	return nil
}
