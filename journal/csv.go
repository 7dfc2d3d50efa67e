package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

var (
	tradeHeader  = []string{"ticket", "strategy_id", "symbol", "action", "volume", "open_time", "close_time", "duration_sec", "open_price", "close_price", "sl", "tp", "pnl", "profit", "commission", "swap", "close_reason", "meta_json"}
	equityHeader = []string{"timestamp", "balance", "equity", "open_positions", "strategy_pl"}
)

// CSVJournal appends to two files. Rows are never rewritten, so a ticket
// that is already in the trades file is skipped on later writes.
type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
	seen   map[int64]bool
}

var _ Journal = (*CSVJournal)(nil)

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	seen, err := readTickets(tradesPath)
	if err != nil {
		return nil, err
	}

	tf, err := openAppend(tradesPath, tradeHeader)
	if err != nil {
		return nil, err
	}
	ef, err := openAppend(equityPath, equityHeader)
	if err != nil {
		tf.Close()
		return nil, err
	}

	return &CSVJournal{
		trades: csv.NewWriter(tf),
		equity: csv.NewWriter(ef),
		tf:     tf,
		ef:     ef,
		seen:   seen,
	}, nil
}

// openAppend opens path for appending and writes header if the file is new
// or empty.
func openAppend(path string, header []string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func readTickets(path string) (map[int64]bool, error) {
	seen := make(map[int64]bool)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return seen, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for line := 0; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if line == 0 || len(rec) == 0 {
			continue
		}
		ticket, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue
		}
		seen[ticket] = true
	}
	return seen, nil
}

func (j *CSVJournal) UpsertTrade(ctx context.Context, t TradeRecord) error {
	if j.seen[t.Ticket] {
		return nil
	}
	meta := ""
	if len(t.Meta) > 0 {
		s, err := sonic.MarshalString(t.Meta)
		if err != nil {
			return fmt.Errorf("upsert trade %d: %w", t.Ticket, err)
		}
		meta = s
	}

	err := j.trades.Write([]string{
		strconv.FormatInt(t.Ticket, 10),
		t.StrategyID,
		t.Symbol,
		t.Action,
		f(t.Volume),
		formatTime(t.OpenTime),
		formatTime(t.CloseTime),
		strconv.FormatInt(int64(t.Duration/time.Second), 10),
		f(t.OpenPrice),
		f(t.ClosePrice),
		f(t.StopLoss),
		f(t.TakeProfit),
		f(t.NetPL),
		f(t.Profit),
		f(t.Commission),
		f(t.Swap),
		t.Reason,
		meta,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.seen[t.Ticket] = true
	return nil
}

func (j *CSVJournal) AppendEquity(ctx context.Context, e EquitySnapshot) error {
	pl := ""
	if len(e.StrategyPL) > 0 {
		s, err := sonic.MarshalString(e.StrategyPL)
		if err != nil {
			return fmt.Errorf("append equity: %w", err)
		}
		pl = s
	}
	err := j.equity.Write([]string{
		formatTime(e.Time),
		f(e.Balance),
		f(e.Equity),
		strconv.Itoa(e.OpenPositions),
		pl,
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

// Close flushes and closes both files even when one of them fails.
func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.equity.Flush()
	return errors.Join(
		j.trades.Error(),
		j.equity.Error(),
		j.tf.Close(),
		j.ef.Close(),
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
