package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

// storeCases runs every contract test against both implementations.
func storeCases(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, Account{ID: "A", Name: "alice", Currency: "USD", Cash: d("1000.00"), CreatedAt: t0}))
	require.NoError(t, s.RegisterStock(ctx, Stock{Symbol: "ACME", Sector: "Industrials"}))
	require.NoError(t, s.RegisterStock(ctx, Stock{Symbol: "BOLT", Sector: "Technology"}))
}

// buyMutation builds a first purchase of symbol on the seeded account.
// Use prior to chain it after earlier mutations.
func buyMutation(id, symbol string, cash, qty, avg, total string, at time.Time) Mutation {
	return Mutation{
		AccountID:    "A",
		PrevCash:     d("1000.00"),
		PrevQuantity: decimal.Zero,
		Cash:         d(cash),
		Holding:      Holding{AccountID: "A", Symbol: symbol, Quantity: d(qty), AverageCost: d(avg), Cost: d(total), UpdatedAt: at},
		Transaction: Transaction{
			ID: id, AccountID: "A", Symbol: symbol, Side: Buy,
			Quantity: d(qty), Price: d(avg), TotalAmount: d(total),
			Status: StatusCompleted, ExecutedAt: at,
		},
		VolumeDelta: d(qty).IntPart(),
	}
}

func prior(m Mutation, cash, qty string) Mutation {
	m.PrevCash = d(cash)
	m.PrevQuantity = d(qty)
	return m
}

func TestStoreAccountsAndStocks(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			a, err := s.Account(ctx, "A")
			require.NoError(t, err)
			assert.Equal(t, "alice", a.Name)
			assert.True(t, a.Cash.Equal(d("1000")))
			assert.True(t, a.CreatedAt.Equal(t0))

			_, err = s.Account(ctx, "nope")
			assert.ErrorIs(t, err, ErrAccountNotFound)

			assert.ErrorIs(t, s.CreateAccount(ctx, Account{ID: "A", Cash: d("1"), CreatedAt: t0}), ErrDuplicate)
			assert.Error(t, s.CreateAccount(ctx, Account{ID: "neg", Cash: d("-1"), CreatedAt: t0}))

			accts, err := s.Accounts(ctx)
			require.NoError(t, err)
			require.Len(t, accts, 1)

			assert.ErrorIs(t, s.RegisterStock(ctx, Stock{Symbol: "ACME"}), ErrDuplicate)
			stocks, err := s.Stocks(ctx)
			require.NoError(t, err)
			require.Len(t, stocks, 2)
			assert.Equal(t, "ACME", stocks[0].Symbol)
			assert.Equal(t, "Technology", stocks[1].Sector)

			_, err = s.Stock(ctx, "ZZZ")
			assert.ErrorIs(t, err, ErrStockNotFound)
		})
	}
}

func TestStoreApplyBuySellDelete(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			out := s.Apply(ctx, buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0))
			require.Equal(t, Committed, out.State, out.Err)

			h, err := s.Holding(ctx, "A", "ACME")
			require.NoError(t, err)
			assert.True(t, h.Quantity.Equal(d("10")))
			assert.True(t, h.CostBasis().Equal(d("100")))

			st, err := s.Stock(ctx, "ACME")
			require.NoError(t, err)
			assert.Equal(t, int64(10), st.DailyVolume)

			sell := Mutation{
				AccountID:    "A",
				PrevCash:     d("900.00"),
				PrevQuantity: d("10"),
				Cash:         d("1020.00"),
				Holding:      Holding{AccountID: "A", Symbol: "ACME", Quantity: decimal.Zero, AverageCost: d("10"), UpdatedAt: t0.Add(time.Minute)},
				Transaction: Transaction{
					ID: "T2", AccountID: "A", Symbol: "ACME", Side: Sell,
					Quantity: d("10"), Price: d("12"), TotalAmount: d("120.00"),
					Status: StatusCompleted, ExecutedAt: t0.Add(time.Minute),
				},
				VolumeDelta: 10,
			}
			out = s.Apply(ctx, sell)
			require.Equal(t, Committed, out.State, out.Err)

			_, err = s.Holding(ctx, "A", "ACME")
			assert.ErrorIs(t, err, ErrHoldingNotFound)
			hs, err := s.Holdings(ctx, "A")
			require.NoError(t, err)
			assert.Empty(t, hs)

			a, err := s.Account(ctx, "A")
			require.NoError(t, err)
			assert.True(t, a.Cash.Equal(d("1020")))

			txns, err := s.Transactions(ctx, "A", TransactionFilter{})
			require.NoError(t, err)
			require.Len(t, txns, 2)
			assert.Equal(t, "T2", txns[0].ID)
			assert.Equal(t, Sell, txns[0].Side)
			assert.True(t, txns[0].ExecutedAt.Equal(t0.Add(time.Minute)))

			got, err := s.Transaction(ctx, "T1")
			require.NoError(t, err)
			assert.True(t, got.TotalAmount.Equal(d("100")))
			_, err = s.Transaction(ctx, "T9")
			assert.ErrorIs(t, err, ErrTransactionNotFound)
		})
	}
}

func TestStoreApplyRollsBackOnMissingStock(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			out := s.Apply(ctx, buyMutation("T1", "GHOST", "900.00", "10", "10", "100.00", t0))
			assert.Equal(t, RolledBack, out.State)
			assert.Error(t, out.Err)

			a, err := s.Account(ctx, "A")
			require.NoError(t, err)
			assert.True(t, a.Cash.Equal(d("1000")), "cash must be restored")
			_, err = s.Holding(ctx, "A", "GHOST")
			assert.ErrorIs(t, err, ErrHoldingNotFound)
			txns, err := s.Transactions(ctx, "A", TransactionFilter{})
			require.NoError(t, err)
			assert.Empty(t, txns)
		})
	}
}

func TestStoreApplyRejectsDuplicateTransaction(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			require.Equal(t, Committed, s.Apply(ctx, buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0)).State)
			out := s.Apply(ctx, prior(buyMutation("T1", "ACME", "800.00", "20", "10", "100.00", t0), "900.00", "10"))
			assert.Equal(t, RolledBack, out.State)

			h, err := s.Holding(ctx, "A", "ACME")
			require.NoError(t, err)
			assert.True(t, h.Quantity.Equal(d("10")))
			a, err := s.Account(ctx, "A")
			require.NoError(t, err)
			assert.True(t, a.Cash.Equal(d("900")))
		})
	}
}

func TestStoreTransactionsFilter(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			require.Equal(t, Committed, s.Apply(ctx, buyMutation("T1", "ACME", "990.00", "1", "10", "10.00", t0)).State)
			require.Equal(t, Committed, s.Apply(ctx, prior(buyMutation("T2", "BOLT", "980.00", "1", "10", "10.00", t0.Add(time.Hour)), "990.00", "0")).State)
			require.Equal(t, Committed, s.Apply(ctx, prior(buyMutation("T3", "ACME", "970.00", "2", "10", "20.00", t0.Add(2*time.Hour)), "980.00", "1")).State)

			got, err := s.Transactions(ctx, "A", TransactionFilter{Symbol: "ACME"})
			require.NoError(t, err)
			assert.Equal(t, []string{"T3", "T1"}, ids(got))

			got, err = s.Transactions(ctx, "A", TransactionFilter{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"T3", "T2"}, ids(got))

			got, err = s.Transactions(ctx, "A", TransactionFilter{Since: t0.Add(30 * time.Minute), Until: t0.Add(90 * time.Minute)})
			require.NoError(t, err)
			assert.Equal(t, []string{"T2"}, ids(got))

			got, err = s.Transactions(ctx, "A", TransactionFilter{Side: Sell})
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = s.Transactions(ctx, "B", TransactionFilter{})
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStoreResetDailyVolumes(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			require.Equal(t, Committed, s.Apply(ctx, buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0)).State)
			require.NoError(t, s.ResetDailyVolumes(ctx))

			st, err := s.Stock(ctx, "ACME")
			require.NoError(t, err)
			assert.Zero(t, st.DailyVolume)
		})
	}
}

func TestStoreApplyRejectsStalePrior(t *testing.T) {
	tests := []struct {
		name      string
		cash, qty string
	}{
		{"cash moved", "999.99", "10"},
		{"holding moved", "900.00", "9"},
	}
	for name, mk := range storeCases(t) {
		mk := mk
		for _, tt := range tests {
			tt := tt
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				t.Parallel()
				s := mk(t)
				seed(t, s)
				ctx := context.Background()
				require.Equal(t, Committed, s.Apply(ctx, buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0)).State)

				out := s.Apply(ctx, prior(buyMutation("T2", "ACME", "800.00", "20", "10", "200.00", t0), tt.cash, tt.qty))
				assert.Equal(t, RolledBack, out.State)
				assert.ErrorIs(t, out.Err, ErrStale)

				a, err := s.Account(ctx, "A")
				require.NoError(t, err)
				assert.True(t, a.Cash.Equal(d("900")))
				h, err := s.Holding(ctx, "A", "ACME")
				require.NoError(t, err)
				assert.True(t, h.Quantity.Equal(d("10")))
				_, err = s.Transaction(ctx, "T2")
				assert.ErrorIs(t, err, ErrTransactionNotFound)
			})
		}
	}
}

func TestStoreRecordPrice(t *testing.T) {
	for name, mk := range storeCases(t) {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := mk(t)
			seed(t, s)
			ctx := context.Background()

			require.NoError(t, s.RecordPrice(ctx, "BOLT", d("25.125"), t0))
			require.NoError(t, s.RecordPrice(ctx, "ACME", d("100"), t0))
			require.NoError(t, s.RecordPrice(ctx, "ACME", d("101.5"), t0.Add(time.Minute)))

			prices, err := s.LastPrices(ctx)
			require.NoError(t, err)
			require.Len(t, prices, 2)
			assert.Equal(t, "ACME", prices[0].Symbol)
			assert.True(t, prices[0].Price.Equal(d("101.5")))
			assert.True(t, prices[0].At.Equal(t0.Add(time.Minute)))
			assert.True(t, prices[1].Price.Equal(d("25.125")))

			assert.ErrorIs(t, s.RecordPrice(ctx, "GHOST", d("1"), t0), ErrStockNotFound)
			assert.Error(t, s.RecordPrice(ctx, "ACME", d("0"), t0))
		})
	}
}

func ids(txns []Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}

func TestMutationValidate(t *testing.T) {
	t.Parallel()

	ok := buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0)
	require.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		mutate func(m *Mutation)
	}{
		{"negative cash", func(m *Mutation) { m.Cash = d("-0.01") }},
		{"negative quantity", func(m *Mutation) { m.Holding.Quantity = d("-1") }},
		{"negative average cost", func(m *Mutation) { m.Holding.AverageCost = d("-1") }},
		{"negative cost", func(m *Mutation) { m.Holding.Cost = d("-1") }},
		{"missing account", func(m *Mutation) { m.AccountID = "" }},
		{"account mismatch", func(m *Mutation) { m.Transaction.AccountID = "B" }},
		{"symbol mismatch", func(m *Mutation) { m.Holding.Symbol = "BOLT" }},
		{"missing id", func(m *Mutation) { m.Transaction.ID = "" }},
		{"negative volume", func(m *Mutation) { m.VolumeDelta = -1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0)
			tt.mutate(&m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidMutation)

			s := NewMemStore()
			out := s.Apply(context.Background(), m)
			assert.Equal(t, RolledBack, out.State)
		})
	}
}

func TestTotalAmountRoundsHalfUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "100.01", TotalAmount(d("3"), d("33.335")).StringFixed(2))
	assert.Equal(t, "0.01", TotalAmount(d("1"), d("0.005")).StringFixed(2))
	assert.Equal(t, "0.00", TotalAmount(d("1"), d("0.0049")).StringFixed(2))
	assert.Equal(t, "1950.00", TotalAmount(d("15"), d("130")).StringFixed(2))
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	s, err := ParseSide(" buy ")
	require.NoError(t, err)
	assert.Equal(t, Buy, s)
	s, err = ParseSide("SELL")
	require.NoError(t, err)
	assert.Equal(t, Sell, s)
	_, err = ParseSide("short")
	assert.Error(t, err)
}
