// Package engine executes trades against the ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/id"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/risk"
	"github.com/shopspring/decimal"
)

// Engine is the trade executor. It owns no state of its own: accounts,
// holdings and the transaction log live in the Store, quotes come from
// the Oracle.
type Engine struct {
	store   ledger.Store
	oracle  market.Oracle
	locks   *ledger.AccountLocks
	session market.Session
	policy  risk.Policy
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string
}

var _ broker.Broker = (*Engine)(nil)

type Option func(*Engine)

// WithClock replaces time.Now, for the session check and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs replaces the transaction id generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithPolicy(p risk.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "engine").Logger() }
}

// NewEngine wires an executor. locks must be the same table the valuator
// uses so valuations never see a half-applied trade.
func NewEngine(store ledger.Store, oracle market.Oracle, locks *ledger.AccountLocks, session market.Session, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		oracle:  oracle,
		locks:   locks,
		session: session,
		policy:  risk.DefaultPolicy(),
		log:     zerolog.Nop(),
		now:     time.Now,
		newID:   id.New,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Account(ctx context.Context, accountID string) (ledger.Account, error) {
	return e.store.Account(ctx, accountID)
}

func (e *Engine) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return e.oracle.CurrentPrice(ctx, symbol)
}

// Execute runs one trade under the account's exclusive lock: validate,
// build the post-trade state, apply it atomically. Validation failures
// come back as Rejected results; any fault while loading or applying
// comes back as an opaque TradeExecutionFailed and is logged here. When
// another process sharing the store changed the account between load and
// apply, the trade is reloaded and revalidated up to maxAttempts times.
func (e *Engine) Execute(ctx context.Context, req broker.TradeRequest) broker.TradeResult {
	if err := ctx.Err(); err != nil {
		return broker.TradeResult{State: broker.StateRejected, Reason: broker.ReasonCanceled, Message: err.Error()}
	}

	unlock := e.locks.Lock(req.AccountID)
	defer unlock()

	log := e.log.With().
		Str("account", req.AccountID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("quantity", req.Quantity.String()).
		Str("price", req.Price.String()).
		Logger()

	for attempt := 1; ; attempt++ {
		res, stale := e.attempt(ctx, req, log)
		if !stale {
			return res
		}
		if attempt == maxAttempts {
			log.Error().Int("attempts", attempt).Msg("ledger kept changing under trade")
			return broker.Failed()
		}
		log.Warn().Int("attempt", attempt).Msg("ledger changed under trade, retrying")
	}
}

// maxAttempts bounds how often a trade is reloaded and revalidated when
// another writer to the same store changed the account first.
const maxAttempts = 3

// attempt runs one load, validate, apply cycle. stale reports that Apply
// found the stored state changed since load and nothing was written.
func (e *Engine) attempt(ctx context.Context, req broker.TradeRequest, log zerolog.Logger) (res broker.TradeResult, stale bool) {
	now := e.now()

	in, err := e.load(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("trade load failed")
		return broker.Failed(), false
	}

	dec := risk.Validate(e.policy, req,
		risk.AccountState{Cash: in.account.Cash},
		in.holding,
		risk.MarketState{Open: e.session.IsOpen(now), CurrentPrice: in.price},
	)
	if !dec.Allowed {
		log.Info().
			Str("reason", string(dec.Violation.Code)).
			Str("detail", dec.Violation.Msg).
			Msg("trade rejected")
		return broker.Rejected(dec.Violation.Code, dec.Violation.Msg), false
	}

	// Last point where the caller can still back out.
	if err := ctx.Err(); err != nil {
		return broker.TradeResult{State: broker.StateRejected, Reason: broker.ReasonCanceled, Message: err.Error()}, false
	}

	m := e.mutation(req, in, dec.TotalAmount, now)

	out := e.store.Apply(ctx, m)
	switch {
	case out.State == ledger.Committed:
		log.Info().
			Str("txn", m.Transaction.ID).
			Str("total", dec.TotalAmount.StringFixed(ledger.CurrencyPlaces)).
			Str("cash", m.Cash.StringFixed(ledger.CurrencyPlaces)).
			Msg("trade committed")
		return broker.TradeResult{
			Success:        true,
			State:          broker.StateCommitted,
			TransactionID:  m.Transaction.ID,
			NewCashBalance: m.Cash,
			ExecutedAt:     m.Transaction.ExecutedAt,
		}, false
	case errors.Is(out.Err, ledger.ErrStale):
		log.Debug().Err(out.Err).Str("txn", m.Transaction.ID).Msg("stale trade rolled back")
		return broker.Failed(), true
	default:
		log.Error().Err(out.Err).Str("txn", m.Transaction.ID).Msg("trade rolled back")
		return broker.Failed(), false
	}
}

type tradeInputs struct {
	account ledger.Account
	stock   ledger.Stock
	holding *ledger.Holding
	price   decimal.Decimal
}

// load reads everything the trade depends on. A missing account, stock
// or quote is a consistency fault, not a validation failure.
func (e *Engine) load(ctx context.Context, req broker.TradeRequest) (tradeInputs, error) {
	var in tradeInputs
	var err error

	if in.account, err = e.store.Account(ctx, req.AccountID); err != nil {
		return in, fmt.Errorf("load account: %w", err)
	}
	if in.stock, err = e.store.Stock(ctx, req.Symbol); err != nil {
		return in, fmt.Errorf("load stock: %w", err)
	}

	h, err := e.store.Holding(ctx, req.AccountID, req.Symbol)
	switch {
	case err == nil:
		in.holding = &h
	case errors.Is(err, ledger.ErrHoldingNotFound):
	default:
		return in, fmt.Errorf("load holding: %w", err)
	}

	if in.price, err = e.oracle.CurrentPrice(ctx, req.Symbol); err != nil {
		return in, fmt.Errorf("load quote: %w", err)
	}
	return in, nil
}

// mutation computes the post-trade state.
//
// BUY: cash -= total; quantity += q; cost += total; average cost becomes
// cost / new qty.
// SELL: cash += total; quantity -= q; average cost unchanged and cost is
// average cost × remaining qty. A holding that reaches exactly zero is
// deleted by the store.
func (e *Engine) mutation(req broker.TradeRequest, in tradeInputs, total decimal.Decimal, now time.Time) ledger.Mutation {
	h := ledger.Holding{
		AccountID:   req.AccountID,
		Symbol:      req.Symbol,
		Quantity:    decimal.Zero,
		AverageCost: decimal.Zero,
		Cost:        decimal.Zero,
		UpdatedAt:   now,
	}
	if in.holding != nil {
		h.Quantity = in.holding.Quantity
		h.AverageCost = in.holding.AverageCost
		h.Cost = in.holding.Cost
	}
	prevQty := h.Quantity

	cash := in.account.Cash
	switch req.Side {
	case ledger.Buy:
		cash = cash.Sub(total)
		h.Quantity = h.Quantity.Add(req.Quantity)
		h.Cost = h.Cost.Add(total)
		h.AverageCost = h.Cost.Div(h.Quantity)
	case ledger.Sell:
		cash = cash.Add(total)
		h.Quantity = h.Quantity.Sub(req.Quantity)
		h.Cost = h.AverageCost.Mul(h.Quantity)
	}

	return ledger.Mutation{
		AccountID:    req.AccountID,
		PrevCash:     in.account.Cash,
		PrevQuantity: prevQty,
		Cash:         cash,
		Holding:      h,
		Transaction: ledger.Transaction{
			ID:          e.newID(),
			AccountID:   req.AccountID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Quantity:    req.Quantity,
			Price:       req.Price,
			TotalAmount: total,
			Status:      ledger.StatusCompleted,
			ExecutedAt:  now.UTC(),
		},
		VolumeDelta: req.Quantity.IntPart(),
	}
}
