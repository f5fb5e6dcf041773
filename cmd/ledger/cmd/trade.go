package cmd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
)

var tradeCmd = &cobra.Command{
	Use:   "trade <buy|sell> <account> <symbol> <quantity> <price>",
	Short: "Execute a single trade",
	Long: `Execute a BUY or SELL against an account at a limit price.

The trade is validated against the trading session, the price collar and
the account's cash or shares before anything is written.

Examples:
  ledger trade buy acct-1 ACME 10 100.00
  ledger trade sell acct-1 ACME 5 130 --market-price 129.50`,
	Args: cobra.ExactArgs(5),
	RunE: runTrade,
}

var tradeMarketPrice string

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.Flags().StringVar(&tradeMarketPrice, "market-price", "", "publish this quote for the symbol before trading")
}

func runTrade(cmd *cobra.Command, args []string) error {
	side, err := ledger.ParseSide(args[0])
	if err != nil {
		return err
	}
	qty, err := decimal.NewFromString(args[3])
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	price, err := decimal.NewFromString(args[4])
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	symbol := strings.ToUpper(args[2])

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if tradeMarketPrice != "" {
		mp, err := decimal.NewFromString(tradeMarketPrice)
		if err != nil {
			return fmt.Errorf("market-price: %w", err)
		}
		st, err := a.store.Stock(ctxOf(cmd), symbol)
		if err != nil {
			return err
		}
		if err := a.quotes.Publish(ctxOf(cmd), market.Quote{Symbol: symbol, Price: mp, Sector: st.Sector}); err != nil {
			return err
		}
	}
	if _, err := a.quotes.Get(symbol); err != nil {
		return fmt.Errorf("%w: publish one with `ledger stock quote %s <price>` or --market-price", err, symbol)
	}

	res := a.engine.Execute(ctxOf(cmd), broker.TradeRequest{
		AccountID: args[1],
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
	})

	out := cmd.OutOrStdout()
	if !res.Success {
		fmt.Fprintf(out, "✗ %s %s %s rejected: %s\n", side, qty, symbol, res.Reason)
		if res.Message != "" {
			fmt.Fprintf(out, "  %s\n", res.Message)
		}
		return res.Err()
	}

	fmt.Fprintf(out, "✓ %s %s %s @ %s\n", side, qty, symbol, price.StringFixed(ledger.CurrencyPlaces))
	fmt.Fprintf(out, "  Transaction: %s\n", res.TransactionID)
	fmt.Fprintf(out, "  Cash:        %s\n", res.NewCashBalance.StringFixed(ledger.CurrencyPlaces))
	return nil
}
