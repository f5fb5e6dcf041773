package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/market"
	"github.com/rustyeddy/ledger/scheduler"
)

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Register stocks and inspect quotes",
}

var stockAddCmd = &cobra.Command{
	Use:   "add <symbol>",
	Short: "Register a tradable stock",
	Args:  cobra.ExactArgs(1),
	RunE:  runStockAdd,
}

var stockQuoteCmd = &cobra.Command{
	Use:   "quote <symbol> <price>",
	Short: "Publish and record a price for a stock",
	Args:  cobra.ExactArgs(2),
	RunE:  runStockQuote,
}

var stockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stocks with their latest quotes and daily volume",
	Args:  cobra.NoArgs,
	RunE:  runStockList,
}

var stockResetVolumeCmd = &cobra.Command{
	Use:   "reset-volume",
	Short: "Zero every stock's daily volume counter now",
	Args:  cobra.NoArgs,
	RunE:  runStockResetVolume,
}

var (
	stockSector string
	stockPrice  string
)

func init() {
	rootCmd.AddCommand(stockCmd)
	stockCmd.AddCommand(stockAddCmd)
	stockCmd.AddCommand(stockQuoteCmd)
	stockCmd.AddCommand(stockListCmd)
	stockCmd.AddCommand(stockResetVolumeCmd)

	stockAddCmd.Flags().StringVar(&stockSector, "sector", "", "sector label")
	stockAddCmd.Flags().StringVar(&stockPrice, "price", "", "publish an opening price")
}

func runStockAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var price decimal.Decimal
	if stockPrice != "" {
		if price, err = decimal.NewFromString(stockPrice); err != nil {
			return fmt.Errorf("price: %w", err)
		}
		if !price.IsPositive() {
			return fmt.Errorf("price must be positive, got %s", price)
		}
	}

	ctx := ctxOf(cmd)
	st := ledger.Stock{Symbol: strings.ToUpper(args[0]), Sector: stockSector}
	if err := a.store.RegisterStock(ctx, st); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered %s (%s)\n", st.Symbol, st.Sector)

	if stockPrice == "" {
		return nil
	}
	if err := a.quotes.Publish(ctx, market.Quote{Symbol: st.Symbol, Price: price, Sector: st.Sector}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Price: %s\n", money(price))
	return nil
}

func runStockQuote(cmd *cobra.Command, args []string) error {
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := ctxOf(cmd)
	st, err := a.store.Stock(ctx, strings.ToUpper(args[0]))
	if err != nil {
		return err
	}
	if err := a.quotes.Publish(ctx, market.Quote{Symbol: st.Symbol, Price: price, Sector: st.Sector}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s @ %s\n", st.Symbol, money(price))
	return nil
}

func runStockList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	stocks, err := a.store.Stocks(ctxOf(cmd))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSECTOR\tPRICE\tVOLUME")
	for _, st := range stocks {
		price := "-"
		if q, err := a.quotes.Get(st.Symbol); err == nil {
			price = money(q.Price)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", st.Symbol, st.Sector, price, st.DailyVolume)
	}
	return tw.Flush()
}

func runStockResetVolume(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job := &scheduler.VolumeResetJob{Store: a.store}
	if err := scheduler.New(a.log).RunNow(job); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Daily volumes reset")
	return nil
}
