package market

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNoQuote = errors.New("no quote")

// Oracle supplies the most recently ingested price and sector for a
// symbol. Nothing about freshness is promised, and a quote read is never
// atomic with a trade.
type Oracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Sector(ctx context.Context, symbol string) (string, error)
}
