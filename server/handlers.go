package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/portfolio"
)

const defaultDashboardSize = 5

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ledger",
	})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := s.broker.Execute(r.Context(), broker.TradeRequest{
		AccountID: req.AccountID,
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:      ledger.Side(strings.ToUpper(strings.TrimSpace(req.Side))),
		Quantity:  req.Quantity,
		Price:     req.Price,
	})
	s.writeJSON(w, tradeStatus(res), newTradeResponse(res))
}

// tradeStatus maps a trade outcome to an HTTP status.
func tradeStatus(r broker.TradeResult) int {
	switch {
	case r.Success:
		return http.StatusCreated
	case r.Reason.IsValidation():
		return http.StatusUnprocessableEntity
	case r.Reason == broker.ReasonCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := s.store.Accounts(r.Context())
	if err != nil {
		s.internalError(w, err, "list accounts")
		return
	}
	out := make([]accountView, 0, len(accts))
	for _, a := range accts {
		out = append(out, newAccountView(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Cash.IsNegative() {
		s.writeError(w, http.StatusBadRequest, "cash must not be negative")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.ID == "" {
		req.ID = s.newID()
	}

	acct := ledger.Account{
		ID:        req.ID,
		Name:      req.Name,
		Currency:  strings.ToUpper(req.Currency),
		Cash:      req.Cash,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), acct); err != nil {
		if errors.Is(err, ledger.ErrDuplicate) {
			s.writeError(w, http.StatusConflict, "account already exists")
			return
		}
		s.internalError(w, err, "create account")
		return
	}
	s.log.Info().Str("account", acct.ID).Msg("account opened")
	s.writeJSON(w, http.StatusCreated, newAccountView(acct))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.store.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "get account")
		return
	}
	s.writeJSON(w, http.StatusOK, newAccountView(acct))
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.valuator.Valuate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "valuate")
		return
	}
	s.writeJSON(w, http.StatusOK, newSnapshotView(snap))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	n, err := intParam(r, "n", defaultDashboardSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.valuator.Valuate(r.Context(), accountID)
	if err != nil {
		s.storeError(w, err, "valuate")
		return
	}
	recent, err := s.store.Transactions(r.Context(), accountID, ledger.TransactionFilter{Limit: n})
	if err != nil {
		s.internalError(w, err, "recent transactions")
		return
	}
	s.writeJSON(w, http.StatusOK, newDashboardView(portfolio.Summarize(snap, recent, n)))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if _, err := s.store.Account(r.Context(), accountID); err != nil {
		s.storeError(w, err, "get account")
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	txns, err := s.store.Transactions(r.Context(), accountID, f)
	if err != nil {
		s.internalError(w, err, "list transactions")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := ledger.WriteTransactionsCSV(w, txns); err != nil {
			s.log.Error().Err(err).Msg("failed to write CSV response")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, newTransactionViews(txns))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Transaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "get transaction")
		return
	}
	s.writeJSON(w, http.StatusOK, newTransactionView(t))
}

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.store.Stocks(r.Context())
	if err != nil {
		s.internalError(w, err, "list stocks")
		return
	}
	out := make([]stockView, 0, len(stocks))
	for _, st := range stocks {
		q, err := s.quotes.Get(st.Symbol)
		out = append(out, newStockView(st, q, err == nil))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	st, err := s.store.Stock(r.Context(), symbol)
	if err != nil {
		s.storeError(w, err, "get stock")
		return
	}
	q, err := s.quotes.Get(symbol)
	s.writeJSON(w, http.StatusOK, newStockView(st, q, err == nil))
}

func (s *Server) handleSetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	st, err := s.store.Stock(r.Context(), symbol)
	if err != nil {
		s.storeError(w, err, "get stock")
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q := market.Quote{Symbol: symbol, Price: req.Price, Sector: req.Sector, Time: s.now().UTC()}
	if err := s.quotes.Set(q); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.RecordPrice(r.Context(), symbol, q.Price, q.Time); err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("record quote")
		s.writeError(w, http.StatusInternalServerError, "failed to record quote")
		return
	}

	q, _ = s.quotes.Get(symbol)
	s.log.Info().Str("symbol", symbol).Str("price", q.Price.String()).Msg("quote updated")
	s.writeJSON(w, http.StatusOK, newStockView(st, q, true))
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	open, close := s.session.Bounds(now)
	s.writeJSON(w, http.StatusOK, marketStatusView{
		Open:       s.session.IsOpen(now),
		AlwaysOpen: s.session.AlwaysOpen,
		Now:        now,
		OpensAt:    open,
		ClosesAt:   close,
	})
}

func parseFilter(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	f := ledger.TransactionFilter{Symbol: strings.ToUpper(q.Get("symbol"))}

	if v := q.Get("side"); v != "" {
		side, err := ledger.ParseSide(v)
		if err != nil {
			return f, err
		}
		f.Side = side
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		if v := q.Get(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, errors.New(p.name + " must be RFC3339")
			}
			*p.dst = t
		}
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// storeError maps not-found errors to 404 and everything else to 500.
func (s *Server) storeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrStockNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrNoQuote):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.internalError(w, err, op)
	}
}

// internalError logs err and answers with a generic message.
func (s *Server) internalError(w http.ResponseWriter, err error, op string) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
