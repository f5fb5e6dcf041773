package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/ledger/broker/engine"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testEnv struct {
	srv    *Server
	store  *ledger.MemStore
	quotes *market.QuoteStore
	logs   *bytes.Buffer
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := ledger.NewMemStore()
	quotes := market.NewQuoteStore()
	locks := ledger.NewAccountLocks()
	require.NoError(t, store.CreateAccount(ctx, ledger.Account{ID: "acct-1", Name: "main", Currency: "USD", Cash: d("10000.00"), CreatedAt: t0}))
	require.NoError(t, store.RegisterStock(ctx, ledger.Stock{Symbol: "ACME", Sector: "Industrials"}))
	require.NoError(t, store.RegisterStock(ctx, ledger.Stock{Symbol: "BOLT", Sector: "Technology"}))
	require.NoError(t, quotes.Set(market.Quote{Symbol: "ACME", Price: d("100"), Sector: "Industrials", Time: t0}))

	clock := func() time.Time { return t0 }
	session := market.Session{AlwaysOpen: true}
	var logs bytes.Buffer
	log := zerolog.New(&logs)

	cfg := Config{
		Log:          log,
		Store:        store,
		Broker:       engine.NewEngine(store, quotes, locks, session, engine.WithClock(clock), engine.WithLogger(log)),
		Valuator:     portfolio.NewValuator(store, quotes, locks, portfolio.WithClock(clock)),
		Quotes:       quotes,
		Session:      session,
		Now:          clock,
		NewAccountID: func() string { return "generated-id" },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return &testEnv{srv: New(cfg), store: store, quotes: quotes, logs: &logs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func trade(side, qty, price string) map[string]string {
	return map[string]string{"account_id": "acct-1", "symbol": "acme", "side": side, "quantity": qty, "price": price}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestTradeCommitted(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/trades", trade("buy", "10", "100.00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[tradeResponse](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "committed", string(res.State))
	assert.NotEmpty(t, res.TransactionID)
	require.NotNil(t, res.NewCashBalance)
	assert.True(t, res.NewCashBalance.Equal(d("9000")))
	assert.Empty(t, res.Error)

	tx, err := e.store.Transaction(context.Background(), res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "ACME", tx.Symbol)
}

func TestTradeRejected(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		body   map[string]string
		reason string
	}{
		{"no holding", trade("sell", "1", "100"), "InsufficientShares"},
		{"collar", trade("buy", "1", "111"), "PriceExceedsLimit"},
		{"zero quantity", trade("buy", "0", "100"), "InvalidQuantity"},
		{"bad side", trade("hold", "1", "100"), "InvalidSide"},
		{"too expensive", trade("buy", "101", "100"), "InsufficientFunds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/trades", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			res := decode[tradeResponse](t, rec)
			assert.False(t, res.Success)
			assert.Equal(t, tt.reason, string(res.Error))
			assert.Nil(t, res.NewCashBalance)
		})
	}

	a, err := e.store.Account(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, a.Cash.Equal(d("10000")))
}

func TestTradeFailureIsOpaque(t *testing.T) {
	e := newTestEnv(t)
	e.store.BeforeStep = func(step ledger.ApplyStep) error {
		if step == ledger.StepTransaction {
			return assert.AnError
		}
		return nil
	}

	rec := e.do(t, http.MethodPost, "/api/trades", trade("buy", "1", "100"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	res := decode[tradeResponse](t, rec)
	assert.Equal(t, "TradeExecutionFailed", string(res.Error))
	assert.Equal(t, "rolled_back", string(res.State))
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestTradeBadBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/trades", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradeRateLimit(t *testing.T) {
	e := newTestEnv(t, func(c *Config) {
		c.TradeRate = 0.001
		c.TradeBurst = 2
	})

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodPost, "/api/trades", trade("buy", "1", "100"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/api/trades", trade("buy", "1", "100"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// reads are not limited
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/accounts", nil).Code)
}

func TestAccounts(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/accounts", map[string]string{"name": "second", "cash": "50.5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[accountView](t, rec)
	assert.Equal(t, "generated-id", created.ID)
	assert.Equal(t, "USD", created.Currency)
	assert.True(t, created.Cash.Equal(d("50.5")))

	rec = e.do(t, http.MethodPost, "/api/accounts", map[string]string{"id": "acct-1", "cash": "1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/accounts", map[string]string{"id": "neg", "cash": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]accountView](t, rec), 2)

	rec = e.do(t, http.MethodGet, "/api/accounts/acct-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "main", decode[accountView](t, rec).Name)

	rec = e.do(t, http.MethodGet, "/api/accounts/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPortfolioAndDashboard(t *testing.T) {
	e := newTestEnv(t)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/trades", trade("buy", "10", "100")).Code)
	require.NoError(t, e.quotes.Set(market.Quote{Symbol: "ACME", Price: d("120"), Time: t0}))

	rec := e.do(t, http.MethodGet, "/api/accounts/acct-1/portfolio", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap := decode[snapshotView](t, rec)
	assert.True(t, snap.TotalPortfolioValue.Equal(d("10200")))
	assert.True(t, snap.EquityValue.Equal(d("1200")))
	assert.True(t, snap.TotalUnrealizedGain.Equal(d("200")))
	require.Len(t, snap.Holdings, 1)
	assert.True(t, snap.Holdings[0].GainPercent.Equal(d("20")))
	assert.True(t, snap.Holdings[0].Weight.Equal(d("100")))
	assert.True(t, snap.SectorAllocation["Industrials"].Equal(d("1200")))

	rec = e.do(t, http.MethodGet, "/api/accounts/acct-1/dashboard?n=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode[dashboardView](t, rec)
	assert.Equal(t, 1, dash.HoldingCount)
	assert.Len(t, dash.RecentTransactions, 1)
	assert.True(t, dash.TotalGainPercent.Equal(d("20")))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/accounts/acct-1/dashboard?n=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/accounts/ghost/portfolio", nil).Code)
}

func TestTransactions(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/trades", trade("buy", "10", "100"))
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[tradeResponse](t, rec).TransactionID
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/trades", trade("sell", "4", "100")).Code)

	rec = e.do(t, http.MethodGet, "/api/accounts/acct-1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txns := decode[[]transactionView](t, rec)
	require.Len(t, txns, 2)
	assert.Equal(t, ledger.Sell, txns[0].Side)

	rec = e.do(t, http.MethodGet, "/api/accounts/acct-1/transactions?side=buy&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txns = decode[[]transactionView](t, rec)
	require.Len(t, txns, 1)
	assert.Equal(t, first, txns[0].ID)

	rec = e.do(t, http.MethodGet, "/api/accounts/acct-1/transactions?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/accounts/acct-1/transactions?since=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/accounts/acct-1/transactions?side=short", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/accounts/ghost/transactions", nil).Code)

	rec = e.do(t, http.MethodGet, "/api/transactions/"+first, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[transactionView](t, rec).TotalAmount.Equal(d("1000")))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/transactions/nope", nil).Code)
}

func TestStocksAndQuotes(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/stocks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stocks := decode[[]stockView](t, rec)
	require.Len(t, stocks, 2)
	require.NotNil(t, stocks[0].CurrentPrice)
	assert.True(t, stocks[0].CurrentPrice.Equal(d("100")))
	assert.Nil(t, stocks[1].CurrentPrice, "BOLT has no quote yet")

	rec = e.do(t, http.MethodPut, "/api/stocks/bolt/quote", map[string]string{"price": "42.50"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[stockView](t, rec)
	assert.Equal(t, "Technology", st.Sector)
	assert.True(t, st.CurrentPrice.Equal(d("42.5")))

	prices, err := e.store.LastPrices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 1, "the quote is kept in the ledger")
	assert.Equal(t, "BOLT", prices[0].Symbol)
	assert.True(t, prices[0].Price.Equal(d("42.5")))

	rec = e.do(t, http.MethodGet, "/api/stocks/BOLT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[stockView](t, rec).CurrentPrice)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/stocks/BOLT/quote", map[string]string{"price": "0"}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPut, "/api/stocks/NOPE/quote", map[string]string{"price": "1"}).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/stocks/NOPE", nil).Code)
}

func TestMarketStatus(t *testing.T) {
	e := newTestEnv(t, func(c *Config) { c.Session = market.NYSE() })

	rec := e.do(t, http.MethodGet, "/api/market/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[marketStatusView](t, rec)
	// 15:00 UTC on a Tuesday is 11:00 in New York.
	assert.True(t, st.Open)
	assert.False(t, st.AlwaysOpen)
	assert.Equal(t, 13, st.OpensAt.UTC().Hour())
	assert.Equal(t, 30, st.OpensAt.UTC().Minute())
}

func TestRequestsAreLogged(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodGet, "/health", nil)
	assert.Contains(t, e.logs.String(), `"path":"/health"`)
	assert.Contains(t, e.logs.String(), `"component":"server"`)
}
