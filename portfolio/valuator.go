// Package portfolio values an account's holdings at current market prices.
package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// HoldingValue is one position priced at the current quote.
type HoldingValue struct {
	Symbol         string
	Sector         string
	Quantity       decimal.Decimal
	AverageCost    decimal.Decimal
	CurrentPrice   decimal.Decimal
	MarketValue    decimal.Decimal
	CostBasis      decimal.Decimal
	UnrealizedGain decimal.Decimal
	GainPercent    decimal.Decimal
	Weight         decimal.Decimal
}

// Snapshot is a point-in-time valuation of an account.
type Snapshot struct {
	AccountID           string
	TotalPortfolioValue decimal.Decimal
	EquityValue         decimal.Decimal
	CashBalance         decimal.Decimal
	TotalCostBasis      decimal.Decimal
	TotalUnrealizedGain decimal.Decimal
	Holdings            []HoldingValue
	SectorAllocation    map[string]decimal.Decimal
	AsOf                time.Time
}

// Valuator computes Snapshots. It never mutates the store.
type Valuator struct {
	store  ledger.Store
	oracle market.Oracle
	locks  *ledger.AccountLocks
	now    func() time.Time
	log    zerolog.Logger
}

type Option func(*Valuator)

func WithClock(now func() time.Time) Option {
	return func(v *Valuator) { v.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(v *Valuator) { v.log = log.With().Str("component", "valuator").Logger() }
}

func NewValuator(store ledger.Store, oracle market.Oracle, locks *ledger.AccountLocks, opts ...Option) *Valuator {
	v := &Valuator{
		store:  store,
		oracle: oracle,
		locks:  locks,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Valuate prices every holding of the account. The account and its
// holdings are read together under the account's shared lock, so a
// concurrent trade is either fully visible or not at all. Quotes are read
// afterwards and may be slightly newer than the holdings.
func (v *Valuator) Valuate(ctx context.Context, accountID string) (Snapshot, error) {
	acct, holdings, err := v.read(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		AccountID:        accountID,
		CashBalance:      acct.Cash,
		Holdings:         make([]HoldingValue, 0, len(holdings)),
		SectorAllocation: make(map[string]decimal.Decimal),
		AsOf:             v.now().UTC(),
	}

	for _, h := range holdings {
		price, err := v.oracle.CurrentPrice(ctx, h.Symbol)
		if err != nil {
			return Snapshot{}, fmt.Errorf("valuate %s: %w", h.Symbol, err)
		}
		sector, err := v.sector(ctx, h.Symbol)
		if err != nil {
			return Snapshot{}, fmt.Errorf("valuate %s: %w", h.Symbol, err)
		}

		hv := valueHolding(h, price, sector)
		snap.Holdings = append(snap.Holdings, hv)
		snap.EquityValue = snap.EquityValue.Add(hv.MarketValue)
		snap.TotalCostBasis = snap.TotalCostBasis.Add(hv.CostBasis)
		snap.SectorAllocation[sector] = snap.SectorAllocation[sector].Add(hv.MarketValue)
	}

	// Weights need the final equity total.
	for i := range snap.Holdings {
		snap.Holdings[i].Weight = percent(snap.Holdings[i].MarketValue, snap.EquityValue)
	}
	sort.Slice(snap.Holdings, func(i, j int) bool {
		return snap.Holdings[i].Symbol < snap.Holdings[j].Symbol
	})

	snap.TotalPortfolioValue = snap.EquityValue.Add(snap.CashBalance)
	snap.TotalUnrealizedGain = snap.EquityValue.Sub(snap.TotalCostBasis)

	v.log.Debug().
		Str("account", accountID).
		Int("holdings", len(snap.Holdings)).
		Str("total", snap.TotalPortfolioValue.StringFixed(ledger.CurrencyPlaces)).
		Msg("valuated")
	return snap, nil
}

func (v *Valuator) read(ctx context.Context, accountID string) (ledger.Account, []ledger.Holding, error) {
	unlock := v.locks.RLock(accountID)
	defer unlock()

	acct, err := v.store.Account(ctx, accountID)
	if err != nil {
		return ledger.Account{}, nil, err
	}
	holdings, err := v.store.Holdings(ctx, accountID)
	if err != nil {
		return ledger.Account{}, nil, fmt.Errorf("holdings of %s: %w", accountID, err)
	}
	return acct, holdings, nil
}

// sector prefers the quote's label and falls back to the registered stock.
func (v *Valuator) sector(ctx context.Context, symbol string) (string, error) {
	sector, err := v.oracle.Sector(ctx, symbol)
	if err != nil || sector != "" {
		return sector, err
	}
	st, err := v.store.Stock(ctx, symbol)
	if err != nil {
		return "", err
	}
	return st.Sector, nil
}

func valueHolding(h ledger.Holding, price decimal.Decimal, sector string) HoldingValue {
	mv := price.Mul(h.Quantity)
	basis := h.CostBasis()
	gain := mv.Sub(basis)
	return HoldingValue{
		Symbol:         h.Symbol,
		Sector:         sector,
		Quantity:       h.Quantity,
		AverageCost:    h.AverageCost,
		CurrentPrice:   price,
		MarketValue:    mv,
		CostBasis:      basis,
		UnrealizedGain: gain,
		GainPercent:    percent(gain, basis),
	}
}

// percent returns part/whole × 100, or 0 when whole is 0.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
