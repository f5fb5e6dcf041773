// Package broker defines the caller-facing trade request and result
// shapes and the Broker contract the engine implements.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/ledger/ledger"
	"github.com/shopspring/decimal"
)

type Broker interface {
	Account(ctx context.Context, accountID string) (ledger.Account, error)
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
	Execute(ctx context.Context, req TradeRequest) TradeResult
}

// TradeRequest asks to buy or sell Quantity shares of Symbol at Price.
type TradeRequest struct {
	AccountID string
	Symbol    string
	Side      ledger.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
}

// Reason classifies why a trade did not commit.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMarketClosed         Reason = "MarketClosed"
	ReasonInvalidQuantity      Reason = "InvalidQuantity"
	ReasonInvalidPrice         Reason = "InvalidPrice"
	ReasonInvalidSide          Reason = "InvalidSide"
	ReasonPriceExceedsLimit    Reason = "PriceExceedsLimit"
	ReasonInsufficientFunds    Reason = "InsufficientFunds"
	ReasonInsufficientShares   Reason = "InsufficientShares"
	ReasonTradeExecutionFailed Reason = "TradeExecutionFailed"
	ReasonCanceled             Reason = "Canceled"
)

var (
	ErrMarketClosed         = errors.New("market is closed")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidSide          = errors.New("invalid side")
	ErrPriceExceedsLimit    = errors.New("price exceeds limit")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrTradeExecutionFailed = errors.New("trade execution failed")
	ErrCanceled             = errors.New("trade canceled")
)

var reasonErrors = map[Reason]error{
	ReasonMarketClosed:         ErrMarketClosed,
	ReasonInvalidQuantity:      ErrInvalidQuantity,
	ReasonInvalidPrice:         ErrInvalidPrice,
	ReasonInvalidSide:          ErrInvalidSide,
	ReasonPriceExceedsLimit:    ErrPriceExceedsLimit,
	ReasonInsufficientFunds:    ErrInsufficientFunds,
	ReasonInsufficientShares:   ErrInsufficientShares,
	ReasonTradeExecutionFailed: ErrTradeExecutionFailed,
	ReasonCanceled:             ErrCanceled,
}

// IsValidation reports whether r is an expected pre-trade rejection.
func (r Reason) IsValidation() bool {
	switch r {
	case ReasonMarketClosed, ReasonInvalidQuantity, ReasonInvalidPrice, ReasonInvalidSide,
		ReasonPriceExceedsLimit, ReasonInsufficientFunds, ReasonInsufficientShares:
		return true
	}
	return false
}

// State is the terminal state of a trade.
type State string

const (
	StateRejected   State = "rejected"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// TradeResult is either a committed trade (Success, TransactionID,
// NewCashBalance, ExecutedAt set) or a failure (Reason, Message set).
type TradeResult struct {
	Success        bool
	State          State
	TransactionID  string
	NewCashBalance decimal.Decimal
	ExecutedAt     time.Time
	Reason         Reason
	Message        string
}

// Rejected builds a failed result with no state change.
func Rejected(reason Reason, msg string) TradeResult {
	return TradeResult{State: StateRejected, Reason: reason, Message: msg}
}

// Failed builds the opaque result for a rolled back trade.
func Failed() TradeResult {
	return TradeResult{
		State:   StateRolledBack,
		Reason:  ReasonTradeExecutionFailed,
		Message: "Transaction failed",
	}
}

// Err returns nil for a successful trade, otherwise an error wrapping the
// sentinel for its Reason.
func (r TradeResult) Err() error {
	if r.Success {
		return nil
	}
	base, ok := reasonErrors[r.Reason]
	if !ok {
		base = ErrTradeExecutionFailed
	}
	if r.Message == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, r.Message)
}
