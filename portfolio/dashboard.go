package portfolio

import (
	"sort"

	"github.com/rustyeddy/ledger/ledger"
	"github.com/shopspring/decimal"
)

// Dashboard is the summary shown on an account's overview page.
type Dashboard struct {
	AccountID          string
	TotalValue         decimal.Decimal
	CashBalance        decimal.Decimal
	TotalGain          decimal.Decimal
	TotalGainPercent   decimal.Decimal
	HoldingCount       int
	TopHoldings        []HoldingValue
	SectorAllocation   map[string]decimal.Decimal
	RecentTransactions []ledger.Transaction
}

// Summarize builds a Dashboard from a snapshot and the account's
// transactions (newest first). n caps both the top holdings, ranked by
// market value, and the recent transactions. n <= 0 means no cap.
func Summarize(snap Snapshot, recent []ledger.Transaction, n int) Dashboard {
	top := make([]HoldingValue, len(snap.Holdings))
	copy(top, snap.Holdings)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].MarketValue.GreaterThan(top[j].MarketValue)
	})
	if n > 0 && len(top) > n {
		top = top[:n]
	}
	if n > 0 && len(recent) > n {
		recent = recent[:n]
	}

	return Dashboard{
		AccountID:          snap.AccountID,
		TotalValue:         snap.TotalPortfolioValue,
		CashBalance:        snap.CashBalance,
		TotalGain:          snap.TotalUnrealizedGain,
		TotalGainPercent:   percent(snap.TotalUnrealizedGain, snap.TotalCostBasis),
		HoldingCount:       len(snap.Holdings),
		TopHoldings:        top,
		SectorAllocation:   snap.SectorAllocation,
		RecentTransactions: recent,
	}
}
