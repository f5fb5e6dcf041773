package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrStockNotFound       = errors.New("stock not found")
	ErrHoldingNotFound     = errors.New("holding not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicate           = errors.New("already exists")
	ErrInvalidMutation     = errors.New("invalid mutation")
	// ErrStale means the stored cash or holding no longer matches what a
	// mutation was computed from.
	ErrStale = errors.New("ledger changed since read")
)

// Store is the persistence contract the trade engine and valuator depend on.
type Store interface {
	CreateAccount(ctx context.Context, a Account) error
	Account(ctx context.Context, id string) (Account, error)
	Accounts(ctx context.Context) ([]Account, error)

	RegisterStock(ctx context.Context, s Stock) error
	Stock(ctx context.Context, symbol string) (Stock, error)
	Stocks(ctx context.Context) ([]Stock, error)
	ResetDailyVolumes(ctx context.Context) error

	RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error
	LastPrices(ctx context.Context) ([]StockPrice, error)

	Holding(ctx context.Context, accountID, symbol string) (Holding, error)
	Holdings(ctx context.Context, accountID string) ([]Holding, error)

	Transaction(ctx context.Context, id string) (Transaction, error)
	Transactions(ctx context.Context, accountID string, f TransactionFilter) ([]Transaction, error)

	// Apply writes every part of m or none of it. It rolls back with
	// ErrStale when the stored state differs from m's prior values.
	Apply(ctx context.Context, m Mutation) Outcome

	Close() error
}

// Mutation is the complete post-trade state for one account and symbol.
type Mutation struct {
	AccountID string
	// PrevCash and PrevQuantity are the balance and holding quantity
	// (zero when there was no holding) the mutation was computed from.
	PrevCash     decimal.Decimal
	PrevQuantity decimal.Decimal
	// Cash is the account's resulting balance.
	Cash decimal.Decimal
	// Holding is the resulting position. A zero quantity deletes it.
	Holding     Holding
	Transaction Transaction
	VolumeDelta int64
}

// Validate guards the ledger invariants before anything is written.
func (m Mutation) Validate() error {
	switch {
	case m.AccountID == "":
		return fmt.Errorf("%w: missing account", ErrInvalidMutation)
	case m.Cash.IsNegative():
		return fmt.Errorf("%w: negative cash balance %s", ErrInvalidMutation, m.Cash)
	case m.Holding.Quantity.IsNegative():
		return fmt.Errorf("%w: negative quantity %s", ErrInvalidMutation, m.Holding.Quantity)
	case m.Holding.AverageCost.IsNegative():
		return fmt.Errorf("%w: negative average cost %s", ErrInvalidMutation, m.Holding.AverageCost)
	case m.Holding.Cost.IsNegative():
		return fmt.Errorf("%w: negative cost %s", ErrInvalidMutation, m.Holding.Cost)
	case m.Holding.AccountID != m.AccountID || m.Transaction.AccountID != m.AccountID:
		return fmt.Errorf("%w: account mismatch", ErrInvalidMutation)
	case m.Holding.Symbol != m.Transaction.Symbol:
		return fmt.Errorf("%w: symbol mismatch", ErrInvalidMutation)
	case m.Transaction.ID == "":
		return fmt.Errorf("%w: missing transaction id", ErrInvalidMutation)
	case m.VolumeDelta < 0:
		return fmt.Errorf("%w: negative volume delta", ErrInvalidMutation)
	}
	return nil
}

// State is the terminal state of an Apply call.
type State int

const (
	RolledBack State = iota
	Committed
)

func (s State) String() string {
	if s == Committed {
		return "committed"
	}
	return "rolled_back"
}

// Outcome reports how Apply ended. Err is set whenever State is RolledBack.
type Outcome struct {
	State State
	Err   error
}

func committed() Outcome { return Outcome{State: Committed} }

func rolledBack(err error) Outcome { return Outcome{State: RolledBack, Err: err} }

// checkPrior compares the stored cash and holding quantity with the
// values m was computed from.
func checkPrior(m Mutation, cash, quantity decimal.Decimal) error {
	if !cash.Equal(m.PrevCash) {
		return fmt.Errorf("cash of %q is %s, expected %s: %w", m.AccountID, cash, m.PrevCash, ErrStale)
	}
	if !quantity.Equal(m.PrevQuantity) {
		return fmt.Errorf("holding %s/%s is %s, expected %s: %w",
			m.AccountID, m.Holding.Symbol, quantity, m.PrevQuantity, ErrStale)
	}
	return nil
}
