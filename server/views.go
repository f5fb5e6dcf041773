package server

import (
	"time"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/portfolio"
	"github.com/shopspring/decimal"
)

// JSON shapes. Decimals encode as strings to keep their precision.

type tradeRequest struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type tradeResponse struct {
	Success        bool             `json:"success"`
	State          broker.State     `json:"state"`
	TransactionID  string           `json:"transaction_id,omitempty"`
	NewCashBalance *decimal.Decimal `json:"new_cash_balance,omitempty"`
	ExecutedAt     *time.Time       `json:"executed_at,omitempty"`
	Error          broker.Reason    `json:"error,omitempty"`
	Message        string           `json:"message,omitempty"`
}

func newTradeResponse(r broker.TradeResult) tradeResponse {
	out := tradeResponse{
		Success:       r.Success,
		State:         r.State,
		TransactionID: r.TransactionID,
		Error:         r.Reason,
		Message:       r.Message,
	}
	if r.Success {
		cash := r.NewCashBalance
		at := r.ExecutedAt
		out.NewCashBalance = &cash
		out.ExecutedAt = &at
	}
	return out
}

type createAccountRequest struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Cash     decimal.Decimal `json:"cash"`
}

type accountView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Cash      decimal.Decimal `json:"cash_balance"`
	CreatedAt time.Time       `json:"created_at"`
}

func newAccountView(a ledger.Account) accountView {
	return accountView{ID: a.ID, Name: a.Name, Currency: a.Currency, Cash: a.Cash, CreatedAt: a.CreatedAt}
}

type transactionView struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Side        ledger.Side     `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

func newTransactionView(t ledger.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Symbol:      t.Symbol,
		Side:        t.Side,
		Quantity:    t.Quantity,
		Price:       t.Price,
		TotalAmount: t.TotalAmount,
		Status:      t.Status,
		ExecutedAt:  t.ExecutedAt,
	}
}

func newTransactionViews(txns []ledger.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		out = append(out, newTransactionView(t))
	}
	return out
}

type holdingView struct {
	Symbol         string          `json:"symbol"`
	Sector         string          `json:"sector"`
	Quantity       decimal.Decimal `json:"quantity"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	UnrealizedGain decimal.Decimal `json:"unrealized_gain"`
	GainPercent    decimal.Decimal `json:"gain_percentage"`
	Weight         decimal.Decimal `json:"weight"`
}

func newHoldingViews(hs []portfolio.HoldingValue) []holdingView {
	out := make([]holdingView, 0, len(hs))
	for _, h := range hs {
		out = append(out, holdingView{
			Symbol:         h.Symbol,
			Sector:         h.Sector,
			Quantity:       h.Quantity,
			AverageCost:    h.AverageCost,
			CurrentPrice:   h.CurrentPrice,
			MarketValue:    h.MarketValue,
			CostBasis:      h.CostBasis,
			UnrealizedGain: h.UnrealizedGain,
			GainPercent:    h.GainPercent.Round(2),
			Weight:         h.Weight.Round(2),
		})
	}
	return out
}

type snapshotView struct {
	AccountID           string                     `json:"account_id"`
	TotalPortfolioValue decimal.Decimal            `json:"total_portfolio_value"`
	EquityValue         decimal.Decimal            `json:"equity_value"`
	CashBalance         decimal.Decimal            `json:"cash_balance"`
	TotalCostBasis      decimal.Decimal            `json:"total_cost_basis"`
	TotalUnrealizedGain decimal.Decimal            `json:"total_unrealized_gain"`
	Holdings            []holdingView              `json:"holdings"`
	SectorAllocation    map[string]decimal.Decimal `json:"sector_allocation"`
	AsOf                time.Time                  `json:"as_of"`
}

func newSnapshotView(s portfolio.Snapshot) snapshotView {
	return snapshotView{
		AccountID:           s.AccountID,
		TotalPortfolioValue: s.TotalPortfolioValue,
		EquityValue:         s.EquityValue,
		CashBalance:         s.CashBalance,
		TotalCostBasis:      s.TotalCostBasis,
		TotalUnrealizedGain: s.TotalUnrealizedGain,
		Holdings:            newHoldingViews(s.Holdings),
		SectorAllocation:    s.SectorAllocation,
		AsOf:                s.AsOf,
	}
}

type dashboardView struct {
	AccountID          string                     `json:"account_id"`
	TotalValue         decimal.Decimal            `json:"total_value"`
	CashBalance        decimal.Decimal            `json:"cash_balance"`
	TotalGain          decimal.Decimal            `json:"total_gain"`
	TotalGainPercent   decimal.Decimal            `json:"total_gain_percentage"`
	HoldingCount       int                        `json:"holding_count"`
	TopHoldings        []holdingView              `json:"top_holdings"`
	SectorAllocation   map[string]decimal.Decimal `json:"sector_allocation"`
	RecentTransactions []transactionView          `json:"recent_transactions"`
}

func newDashboardView(d portfolio.Dashboard) dashboardView {
	return dashboardView{
		AccountID:          d.AccountID,
		TotalValue:         d.TotalValue,
		CashBalance:        d.CashBalance,
		TotalGain:          d.TotalGain,
		TotalGainPercent:   d.TotalGainPercent.Round(2),
		HoldingCount:       d.HoldingCount,
		TopHoldings:        newHoldingViews(d.TopHoldings),
		SectorAllocation:   d.SectorAllocation,
		RecentTransactions: newTransactionViews(d.RecentTransactions),
	}
}

type stockView struct {
	Symbol       string           `json:"symbol"`
	Sector       string           `json:"sector"`
	DailyVolume  int64            `json:"daily_volume"`
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
	QuotedAt     *time.Time       `json:"quoted_at,omitempty"`
}

// newStockView merges the stored stock with its latest quote, if any.
func newStockView(st ledger.Stock, q market.Quote, quoted bool) stockView {
	v := stockView{Symbol: st.Symbol, Sector: st.Sector, DailyVolume: st.DailyVolume}
	if quoted {
		price, at := q.Price, q.Time
		v.CurrentPrice = &price
		v.QuotedAt = &at
		if q.Sector != "" {
			v.Sector = q.Sector
		}
	}
	return v
}

type quoteRequest struct {
	Price  decimal.Decimal `json:"price"`
	Sector string          `json:"sector,omitempty"`
}

type marketStatusView struct {
	Open       bool      `json:"open"`
	AlwaysOpen bool      `json:"always_open"`
	Now        time.Time `json:"now"`
	OpensAt    time.Time `json:"opens_at"`
	ClosesAt   time.Time `json:"closes_at"`
}
