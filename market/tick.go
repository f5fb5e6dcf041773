package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest known price of a stock.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	Sector string
	Time   time.Time
}

// Recorder keeps published prices beyond the life of the process.
type Recorder interface {
	RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error
}

// QuoteStore is an in-memory Oracle holding the last quote per symbol.
type QuoteStore struct {
	mu       sync.RWMutex
	quotes   map[string]Quote
	recorder Recorder
}

var _ Oracle = (*QuoteStore)(nil)

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

// Set replaces the quote for q.Symbol. An empty sector keeps the one
// already known.
func (qs *QuoteStore) Set(q Quote) error {
	if q.Symbol == "" {
		return fmt.Errorf("set quote: empty symbol")
	}
	if !q.Price.IsPositive() {
		return fmt.Errorf("set quote %s: price must be positive, got %s", q.Symbol, q.Price)
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if q.Sector == "" {
		q.Sector = qs.quotes[q.Symbol].Sector
	}
	qs.quotes[q.Symbol] = q
	return nil
}

// RecordTo makes Publish write every price through to r.
func (qs *QuoteStore) RecordTo(r Recorder) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.recorder = r
}

// Publish sets q and records its price. A zero q.Time is stamped with
// the current time. If recording fails the in-memory quote stays.
func (qs *QuoteStore) Publish(ctx context.Context, q Quote) error {
	if q.Time.IsZero() {
		q.Time = time.Now().UTC()
	}
	if err := qs.Set(q); err != nil {
		return err
	}
	qs.mu.RLock()
	r := qs.recorder
	qs.mu.RUnlock()
	if r == nil {
		return nil
	}
	if err := r.RecordPrice(ctx, q.Symbol, q.Price, q.Time); err != nil {
		return fmt.Errorf("record quote %s: %w", q.Symbol, err)
	}
	return nil
}

func (qs *QuoteStore) Get(symbol string) (Quote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	q, ok := qs.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoQuote)
	}
	return q, nil
}

// Symbols lists every quoted symbol in order.
func (qs *QuoteStore) Symbols() []string {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	out := make([]string, 0, len(qs.quotes))
	for s := range qs.quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (qs *QuoteStore) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := qs.Get(symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return q.Price, nil
}

func (qs *QuoteStore) Sector(ctx context.Context, symbol string) (string, error) {
	q, err := qs.Get(symbol)
	if err != nil {
		return "", err
	}
	return q.Sector, nil
}
