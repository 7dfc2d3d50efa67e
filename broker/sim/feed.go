package sim

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/trademanager/broker"
)

// TickFeed reads quotes from a CSV file with columns time,symbol,bid,ask.
// A header row is allowed; extra columns are ignored.
type TickFeed struct {
	f        *os.File
	r        *csv.Reader
	line     int
	sawFirst bool
}

func OpenTickFeed(path string) (*TickFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return &TickFeed{f: f, r: r}, nil
}

func (t *TickFeed) Close() error {
	if t.f != nil {
		return t.f.Close()
	}
	return nil
}

// Next returns the next quote, or false at end of file.
func (t *TickFeed) Next() (broker.Tick, bool, error) {
	for {
		row, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return broker.Tick{}, false, nil
		}
		if err != nil {
			return broker.Tick{}, false, err
		}
		t.line++
		if !t.sawFirst {
			t.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}
		if len(row) < 4 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		tick, err := parseTickRow(row)
		if err != nil {
			return broker.Tick{}, false, fmt.Errorf("line %d: %w", t.line, err)
		}
		return tick, true, nil
	}
}

func parseTickRow(row []string) (broker.Tick, error) {
	ts := strings.TrimSpace(row[0])
	tm, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return broker.Tick{}, fmt.Errorf("bad time %q: %w", ts, err)
	}
	bid, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return broker.Tick{}, fmt.Errorf("bad bid %q: %w", row[2], err)
	}
	ask, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return broker.Tick{}, fmt.Errorf("bad ask %q: %w", row[3], err)
	}
	return broker.Tick{Symbol: strings.TrimSpace(row[1]), Bid: bid, Ask: ask, Time: tm}, nil
}

// Play pushes every quote of the feed into e. With speed > 0 it waits the
// recorded gap between quotes divided by speed; with speed 0 it replays as
// fast as possible. It returns the number of quotes applied.
func (t *TickFeed) Play(ctx context.Context, e *Engine, speed float64) (int, error) {
	var (
		n    int
		prev time.Time
	)
	for {
		tick, ok, err := t.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		if speed > 0 && !prev.IsZero() {
			if gap := tick.Time.Sub(prev); gap > 0 {
				wait := time.NewTimer(time.Duration(float64(gap) / speed))
				select {
				case <-ctx.Done():
					wait.Stop()
					return n, ctx.Err()
				case <-wait.C:
				}
			}
		}
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		prev = tick.Time
		if err := e.UpdatePrice(tick); err != nil {
			return n, err
		}
		n++
	}
}
