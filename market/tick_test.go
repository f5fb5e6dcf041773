package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteStoreSetGet(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, qs.Set(Quote{Symbol: "AAPL", Price: decimal.RequireFromString("187.15"), Sector: "Technology", Time: now}))
	require.NoError(t, qs.Set(Quote{Symbol: "AAPL", Price: decimal.RequireFromString("188.00"), Time: now.Add(time.Minute)}))

	ctx := context.Background()
	p, err := qs.CurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("188")))

	sector, err := qs.Sector(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Technology", sector, "empty sector keeps the previous one")

	_, err = qs.CurrentPrice(ctx, "MSFT")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestQuoteStoreRejectsBadQuotes(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	assert.Error(t, qs.Set(Quote{Price: decimal.NewFromInt(1)}))
	assert.Error(t, qs.Set(Quote{Symbol: "X", Price: decimal.Zero}))
	assert.Error(t, qs.Set(Quote{Symbol: "X", Price: decimal.NewFromInt(-3)}))
	assert.Empty(t, qs.Symbols())
}

func TestQuoteStoreSymbolsSorted(t *testing.T) {
	t.Parallel()

	qs := NewQuoteStore()
	for _, s := range []string{"MSFT", "AAPL", "JPM"} {
		require.NoError(t, qs.Set(Quote{Symbol: s, Price: decimal.NewFromInt(10)}))
	}
	assert.Equal(t, []string{"AAPL", "JPM", "MSFT"}, qs.Symbols())
}

type recorded struct {
	symbol string
	price  decimal.Decimal
	at     time.Time
}

type fakeRecorder struct {
	got []recorded
	err error
}

func (f *fakeRecorder) RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, recorded{symbol, price, at})
	return nil
}

func TestQuoteStorePublishRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	qs := NewQuoteStore()

	// Without a recorder Publish is Set.
	require.NoError(t, qs.Publish(ctx, Quote{Symbol: "AAPL", Price: decimal.NewFromInt(187), Time: now}))

	rec := &fakeRecorder{}
	qs.RecordTo(rec)
	require.NoError(t, qs.Publish(ctx, Quote{Symbol: "AAPL", Price: decimal.RequireFromString("188.25"), Time: now.Add(time.Minute)}))
	require.NoError(t, qs.Publish(ctx, Quote{Symbol: "MSFT", Price: decimal.NewFromInt(400)}))
	assert.Error(t, qs.Publish(ctx, Quote{Symbol: "MSFT", Price: decimal.Zero}))

	require.Len(t, rec.got, 2)
	assert.Equal(t, "AAPL", rec.got[0].symbol)
	assert.True(t, rec.got[0].price.Equal(decimal.RequireFromString("188.25")))
	assert.True(t, rec.got[0].at.Equal(now.Add(time.Minute)))
	assert.False(t, rec.got[1].at.IsZero(), "unstamped quotes get the current time")

	q, err := qs.Get("MSFT")
	require.NoError(t, err)
	assert.Equal(t, rec.got[1].at, q.Time)

	rec.err = errors.New("disk full")
	err = qs.Publish(ctx, Quote{Symbol: "AAPL", Price: decimal.NewFromInt(190)})
	assert.ErrorContains(t, err, "disk full")
	p, err := qs.CurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(190)), "in-memory quote survives a failed record")
}
