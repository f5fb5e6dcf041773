package risk

import (
	"fmt"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/shopspring/decimal"
)

type Violation struct {
	Code broker.Reason
	Msg  string
}

// Decision is the outcome of Validate. When Allowed is false, Violation
// names the first check that failed.
type Decision struct {
	Allowed     bool
	Violation   Violation
	TotalAmount decimal.Decimal
}

func reject(code broker.Reason, format string, args ...any) Decision {
	return Decision{Violation: Violation{Code: code, Msg: fmt.Sprintf(format, args...)}}
}

// Validate checks req against market and account state. It has no side
// effects. holding is nil when the account holds none of req.Symbol.
//
// Checks run in order and the first failure wins: market open, quantity,
// price, price collar, then funds for a BUY or shares for a SELL. The collar
// only bounds the price from above, for both sides.
func Validate(p Policy, req broker.TradeRequest, acct AccountState, holding *ledger.Holding, mkt MarketState) Decision {
	if !mkt.Open {
		return reject(broker.ReasonMarketClosed, "market is closed")
	}
	if !req.Quantity.IsPositive() {
		return reject(broker.ReasonInvalidQuantity, "quantity must be positive, got %s", req.Quantity)
	}
	if !req.Price.IsPositive() {
		return reject(broker.ReasonInvalidPrice, "price must be positive, got %s", req.Price)
	}

	limit := PriceLimit(mkt.CurrentPrice, p.PriceCollar)
	if req.Price.GreaterThan(limit) {
		return reject(broker.ReasonPriceExceedsLimit,
			"price %s exceeds limit %s", req.Price, limit.StringFixed(ledger.CurrencyPlaces))
	}

	total := ledger.TotalAmount(req.Quantity, req.Price)

	switch req.Side {
	case ledger.Buy:
		if acct.Cash.LessThan(total) {
			return reject(broker.ReasonInsufficientFunds,
				"need %s, have %s (affords %s)", total.StringFixed(2), acct.Cash.StringFixed(2),
				MaxAffordable(acct.Cash, req.Price))
		}
	case ledger.Sell:
		if holding == nil || holding.Quantity.LessThan(req.Quantity) {
			held := decimal.Zero
			if holding != nil {
				held = holding.Quantity
			}
			return reject(broker.ReasonInsufficientShares,
				"selling %s, holding %s", req.Quantity, held)
		}
	default:
		return reject(broker.ReasonInvalidSide, "unknown side %q", req.Side)
	}

	return Decision{Allowed: true, TotalAmount: total}
}
