package risk

import (
	"github.com/rustyeddy/ledger/ledger"
	"github.com/shopspring/decimal"
)

// PriceLimit is the highest acceptable trade price for a quote.
func PriceLimit(current, collar decimal.Decimal) decimal.Decimal {
	return current.Mul(decimal.NewFromInt(1).Add(collar))
}

// MaxAffordable returns the largest whole number of shares whose total
// amount at price fits in cash.
func MaxAffordable(cash, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !cash.IsPositive() {
		return decimal.Zero
	}
	q := cash.Div(price).Floor()
	// Rounding the total half-up can push it a cent over cash.
	for q.IsPositive() && ledger.TotalAmount(q, price).GreaterThan(cash) {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q
}
