package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/shopspring/decimal"
)

// Seed creates the configured accounts and stocks that do not exist yet
// and publishes each stock's configured price. Existing accounts keep
// their balances.
func (c *Config) Seed(ctx context.Context, store ledger.Store, quotes *market.QuoteStore, now time.Time) error {
	for _, a := range c.Accounts {
		cash, err := decimal.NewFromString(a.Cash)
		if err != nil {
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		}
		err = store.CreateAccount(ctx, ledger.Account{
			ID:        a.ID,
			Name:      a.Name,
			Currency:  a.Currency,
			Cash:      cash,
			CreatedAt: now,
		})
		if err != nil && !errors.Is(err, ledger.ErrDuplicate) {
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		}
	}

	for _, s := range c.Stocks {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return fmt.Errorf("seed stock %s: %w", s.Symbol, err)
		}
		err = store.RegisterStock(ctx, ledger.Stock{Symbol: s.Symbol, Sector: s.Sector})
		if err != nil && !errors.Is(err, ledger.ErrDuplicate) {
			return fmt.Errorf("seed stock %s: %w", s.Symbol, err)
		}
		if err := quotes.Set(market.Quote{Symbol: s.Symbol, Price: price, Sector: s.Sector, Time: now}); err != nil {
			return fmt.Errorf("seed stock %s: %w", s.Symbol, err)
		}
	}
	return nil
}
