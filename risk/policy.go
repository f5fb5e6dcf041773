// Package risk holds the pre-trade checks a request must pass before the
// ledger is touched.
package risk

import (
	"github.com/shopspring/decimal"
)

// Policy holds the tunable limits of the validator.
type Policy struct {
	// PriceCollar bounds the requested price above the live quote,
	// as a fraction: 0.10 allows up to current × 1.10.
	PriceCollar decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{PriceCollar: decimal.RequireFromString("0.10")}
}

// AccountState is the part of an account the validator reads.
type AccountState struct {
	Cash decimal.Decimal
}

// MarketState is the market-side input of a validation.
type MarketState struct {
	Open         bool
	CurrentPrice decimal.Decimal
}
