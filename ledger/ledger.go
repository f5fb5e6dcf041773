// Package ledger holds accounts, holdings and the append-only transaction
// log, and applies trade mutations atomically.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

const StatusCompleted = "COMPLETED"

type Account struct {
	ID        string
	Name      string
	Currency  string
	Cash      decimal.Decimal
	CreatedAt time.Time
}

// Stock is the store's record of a tradable symbol. Prices are not kept
// here; they come from the market oracle.
type Stock struct {
	Symbol      string
	Sector      string
	DailyVolume int64
}

// Holding exists only while Quantity is positive. Cost is the exact
// amount of cash the position stands for; AverageCost is Cost / Quantity
// carried to decimal division precision.
type Holding struct {
	AccountID   string
	Symbol      string
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	Cost        decimal.Decimal
	UpdatedAt   time.Time
}

func (h Holding) CostBasis() decimal.Decimal {
	return h.Cost
}

// Transaction is an immutable audit record of one executed trade.
type Transaction struct {
	ID          string
	AccountID   string
	Symbol      string
	Side        Side
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	TotalAmount decimal.Decimal
	Status      string
	ExecutedAt  time.Time
}

// StockPrice is the last price recorded for a stock.
type StockPrice struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

// TransactionFilter narrows Transactions queries. Zero values match all.
type TransactionFilter struct {
	Symbol string
	Side   Side
	Since  time.Time
	Until  time.Time
	Limit  int
}

func (f TransactionFilter) match(t Transaction) bool {
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if f.Side != "" && t.Side != f.Side {
		return false
	}
	if !f.Since.IsZero() && t.ExecutedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !t.ExecutedAt.Before(f.Until) {
		return false
	}
	return true
}

// CurrencyPlaces is the precision of cash amounts.
const CurrencyPlaces = 2

// TotalAmount returns quantity × price rounded half-up to currency precision.
func TotalAmount(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Round(CurrencyPlaces)
}
