package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/portfolio"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio <account>",
	Short: "Value an account at current prices",
	Long: `Print each holding's market value, cost basis, unrealized gain and
weight, the sector allocation and the account totals.

Examples:
  ledger portfolio acct-1
  ledger portfolio acct-1 --dashboard --top 3`,
	Args: cobra.ExactArgs(1),
	RunE: runPortfolio,
}

var (
	portfolioDashboard bool
	portfolioTop       int
)

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.Flags().BoolVar(&portfolioDashboard, "dashboard", false, "print the dashboard summary instead")
	portfolioCmd.Flags().IntVar(&portfolioTop, "top", 5, "holdings and transactions shown on the dashboard")
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := ctxOf(cmd)
	snap, err := a.valuator.Valuate(ctx, args[0])
	if err != nil {
		return fmt.Errorf("valuate: %w", err)
	}

	if !portfolioDashboard {
		printSnapshot(cmd.OutOrStdout(), snap)
		return nil
	}

	recent, err := a.store.Transactions(ctx, args[0], ledger.TransactionFilter{Limit: portfolioTop})
	if err != nil {
		return fmt.Errorf("recent transactions: %w", err)
	}
	printDashboard(cmd.OutOrStdout(), portfolio.Summarize(snap, recent, portfolioTop))
	return nil
}

func money(s interface{ StringFixed(int32) string }) string {
	return s.StringFixed(ledger.CurrencyPlaces)
}

func printSnapshot(out io.Writer, s portfolio.Snapshot) {
	fmt.Fprintf(out, "Portfolio %s as of %s\n\n", s.AccountID, s.AsOf.Format("2006-01-02 15:04:05 MST"))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tQTY\tAVG COST\tPRICE\tVALUE\tBASIS\tGAIN\tGAIN %\tWEIGHT %\t")
	for _, h := range s.Holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			h.Symbol, h.Quantity, money(h.AverageCost), money(h.CurrentPrice),
			money(h.MarketValue), money(h.CostBasis), money(h.UnrealizedGain),
			money(h.GainPercent), money(h.Weight))
	}
	tw.Flush()

	fmt.Fprintln(out, "\nSectors:")
	sectors := make([]string, 0, len(s.SectorAllocation))
	for sector := range s.SectorAllocation {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)
	for _, sector := range sectors {
		fmt.Fprintf(out, "  %-20s %s\n", sector, money(s.SectorAllocation[sector]))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Equity:          %s\n", money(s.EquityValue))
	fmt.Fprintf(out, "Cash:            %s\n", money(s.CashBalance))
	fmt.Fprintf(out, "Total value:     %s\n", money(s.TotalPortfolioValue))
	fmt.Fprintf(out, "Cost basis:      %s\n", money(s.TotalCostBasis))
	fmt.Fprintf(out, "Unrealized gain: %s\n", money(s.TotalUnrealizedGain))
}

func printDashboard(out io.Writer, d portfolio.Dashboard) {
	fmt.Fprintf(out, "Dashboard %s\n", d.AccountID)
	fmt.Fprintf(out, "  Total value: %s\n", money(d.TotalValue))
	fmt.Fprintf(out, "  Cash:        %s\n", money(d.CashBalance))
	fmt.Fprintf(out, "  Gain:        %s (%s%%)\n", money(d.TotalGain), money(d.TotalGainPercent))
	fmt.Fprintf(out, "  Holdings:    %d\n", d.HoldingCount)

	fmt.Fprintln(out, "\nTop holdings:")
	for _, h := range d.TopHoldings {
		fmt.Fprintf(out, "  %-8s %12s  %6s%%\n", h.Symbol, money(h.MarketValue), money(h.Weight))
	}

	fmt.Fprintln(out, "\nRecent transactions:")
	for _, t := range d.RecentTransactions {
		fmt.Fprintf(out, "  %s  %-4s %s %s @ %s\n",
			t.ExecutedAt.Format("2006-01-02 15:04"), t.Side, t.Quantity, t.Symbol, money(t.Price))
	}
}
