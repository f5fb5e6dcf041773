// Package replay feeds a scripted CSV of quotes and orders through a
// broker on a simulated clock.
package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
)

// Clock is a settable time source. Give Clock.Now to the engine so the
// session check and timestamps follow the replayed rows.
type Clock struct {
	mu sync.RWMutex
	t  time.Time
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Row is one CSV line:
//
//	time,symbol,price[,event,account,quantity,limit]
//
// Every row publishes a quote. Event BUY or SELL then submits an order
// for account at limit (the quoted price when limit is empty).
type Row struct {
	Line     int
	Time     time.Time
	Symbol   string
	Price    decimal.Decimal
	Event    string
	Account  string
	Quantity decimal.Decimal
	Limit    decimal.Decimal
}

// Result pairs an order row with its outcome.
type Result struct {
	Row    Row
	Result broker.TradeResult
}

type Summary struct {
	Rows      int
	Trades    int
	Committed int
	Rejected  map[broker.Reason]int
	Failed    int
	Results   []Result
}

type Replayer struct {
	Quotes *market.QuoteStore
	Broker broker.Broker
	Clock  *Clock
	Log    zerolog.Logger

	// From and To limit the rows replayed to [From, To). Zero is unbounded.
	From time.Time
	To   time.Time
}

// Run replays r row by row. A malformed row stops the replay; rejected
// and failed orders are recorded in the summary and the replay goes on.
func (rp *Replayer) Run(ctx context.Context, r io.Reader) (Summary, error) {
	sum := Summary{Rejected: make(map[broker.Reason]int)}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return sum, err
		}
		line++
		if len(rec) == 0 || (line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "time")) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		row, err := parseRow(line, rec)
		if err != nil {
			return sum, err
		}
		if !inRange(row.Time, rp.From, rp.To) {
			continue
		}
		sum.Rows++

		rp.Clock.Set(row.Time)
		if err := rp.Quotes.Publish(ctx, market.Quote{Symbol: row.Symbol, Price: row.Price, Time: row.Time}); err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		if row.Event == "" {
			continue
		}

		res := rp.Broker.Execute(ctx, broker.TradeRequest{
			AccountID: row.Account,
			Symbol:    row.Symbol,
			Side:      ledger.Side(row.Event),
			Quantity:  row.Quantity,
			Price:     row.Limit,
		})
		sum.Trades++
		switch {
		case res.Success:
			sum.Committed++
		case res.Reason == broker.ReasonTradeExecutionFailed:
			sum.Failed++
		default:
			sum.Rejected[res.Reason]++
		}
		sum.Results = append(sum.Results, Result{Row: row, Result: res})

		rp.Log.Debug().
			Int("line", line).
			Str("event", row.Event).
			Bool("success", res.Success).
			Str("reason", string(res.Reason)).
			Msg("replayed order")
	}
}

func parseRow(line int, rec []string) (Row, error) {
	if len(rec) < 3 {
		return Row{}, fmt.Errorf("line %d: want at least time,symbol,price, got %d columns", line, len(rec))
	}
	if len(rec) > 7 {
		return Row{}, fmt.Errorf("line %d: too many columns (expected <=7)", line)
	}
	col := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	row := Row{Line: line, Symbol: strings.ToUpper(col(1))}
	var err error
	if row.Time, err = parseTime(col(0)); err != nil {
		return Row{}, fmt.Errorf("line %d: bad time %q: %w", line, col(0), err)
	}
	if row.Price, err = decimal.NewFromString(col(2)); err != nil {
		return Row{}, fmt.Errorf("line %d: bad price %q: %w", line, col(2), err)
	}

	ev := strings.ToUpper(col(3))
	if ev == "" {
		return row, nil
	}
	side, err := ledger.ParseSide(ev)
	if err != nil {
		return Row{}, fmt.Errorf("line %d: unknown event %q", line, ev)
	}
	row.Event = string(side)
	row.Account = col(4)
	if row.Account == "" {
		return Row{}, fmt.Errorf("line %d: %s without account", line, ev)
	}
	if row.Quantity, err = decimal.NewFromString(col(5)); err != nil {
		return Row{}, fmt.Errorf("line %d: bad quantity %q: %w", line, col(5), err)
	}
	row.Limit = row.Price
	if s := col(6); s != "" {
		if row.Limit, err = decimal.NewFromString(s); err != nil {
			return Row{}, fmt.Errorf("line %d: bad limit %q: %w", line, s, err)
		}
	}
	return row, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
