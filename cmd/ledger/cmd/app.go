package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/broker/engine"
	"github.com/rustyeddy/ledger/config"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/logger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/portfolio"
)

// app is the wired ledger every command runs against.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    ledger.Store
	quotes   *market.QuoteStore
	locks    *ledger.AccountLocks
	session  market.Session
	engine   *engine.Engine
	valuator *portfolio.Valuator
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Type = "sqlite"
		cfg.Store.DBPath = dbPath
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Out: cmd.ErrOrStderr()})
	logger.SetGlobalLogger(log)

	session, err := cfg.MarketSession()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.RiskPolicy()
	if err != nil {
		return nil, err
	}

	var store ledger.Store
	switch cfg.Store.Type {
	case "memory":
		store = ledger.NewMemStore()
	default:
		s, err := ledger.NewSQLite(cfg.Store.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open ledger %s: %w", cfg.Store.DBPath, err)
		}
		store = s
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		quotes:  market.NewQuoteStore(),
		locks:   ledger.NewAccountLocks(),
		session: session,
	}
	if err := cfg.Seed(ctxOf(cmd), a.store, a.quotes, time.Now().UTC()); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := a.restoreQuotes(ctxOf(cmd)); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.quotes.RecordTo(a.store)

	a.engine = engine.NewEngine(a.store, a.quotes, a.locks, a.session,
		engine.WithPolicy(policy),
		engine.WithLogger(log),
	)
	a.valuator = portfolio.NewValuator(a.store, a.quotes, a.locks, portfolio.WithLogger(log))

	log.Debug().
		Str("store", cfg.Store.Type).
		Str("db", cfg.Store.DBPath).
		Int("quotes", len(a.quotes.Symbols())).
		Msg("ledger opened")
	return a, nil
}

// restoreQuotes publishes the last price the ledger recorded for each
// stock. A recorded price is newer than the configured one and wins.
func (a *app) restoreQuotes(ctx context.Context) error {
	prices, err := a.store.LastPrices(ctx)
	if err != nil {
		return fmt.Errorf("restore quotes: %w", err)
	}
	for _, p := range prices {
		st, err := a.store.Stock(ctx, p.Symbol)
		if err != nil {
			return fmt.Errorf("restore quote %s: %w", p.Symbol, err)
		}
		if err := a.quotes.Set(market.Quote{Symbol: p.Symbol, Price: p.Price, Sector: st.Sector, Time: p.At}); err != nil {
			return fmt.Errorf("restore quote %s: %w", p.Symbol, err)
		}
	}
	return nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
