package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteCreatesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"accounts", "stocks", "holdings", "transactions", "prices"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// Reopening an existing file must not fail on the schema.
	s, err = NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSQLiteTransactionsAreAppendOnly(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer s.Close()
	seed(t, s)
	ctx := context.Background()

	require.Equal(t, Committed, s.Apply(ctx, buyMutation("T1", "ACME", "900.00", "10", "10", "100.00", t0)).State)

	_, err = s.db.ExecContext(ctx, `UPDATE transactions SET price = '1' WHERE id = 'T1'`)
	assert.ErrorContains(t, err, "append-only")
	_, err = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = 'T1'`)
	assert.ErrorContains(t, err, "append-only")

	got, err := s.Transaction(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(d("10")))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	seed(t, s)
	ctx := context.Background()
	require.Equal(t, Committed, s.Apply(ctx, buyMutation("T1", "ACME", "899.99", "3", "33.335", "100.01", t0)).State)
	require.NoError(t, s.RecordPrice(ctx, "ACME", d("34.5"), t0))
	require.NoError(t, s.Close())

	s, err = NewSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Account(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "899.99", a.Cash.StringFixed(2))

	h, err := s.Holding(ctx, "A", "ACME")
	require.NoError(t, err)
	assert.True(t, h.AverageCost.Equal(d("33.335")), "decimals keep full precision")
	assert.True(t, h.UpdatedAt.Equal(t0))
	assert.Equal(t, "100.01", h.CostBasis().String())

	prices, err := s.LastPrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, prices[0].Price.Equal(d("34.5")))
	assert.True(t, prices[0].At.Equal(t0))
}
