package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "A brokerage ledger for cash accounts and stock holdings",
	Long: `Ledger executes BUY and SELL orders against cash accounts, keeps an
append-only audit trail of every executed trade and values portfolios at
current market prices.

It provides tools for:
  - Serving the ledger over an HTTP API
  - Executing trades from the command line
  - Valuing portfolios and printing dashboards
  - Querying and exporting the transaction journal
  - Replaying scripted quotes and orders from CSV
  - Managing accounts, stocks and configuration`,
	SilenceUsage: true,
}

var (
	cfgFile string
	dbPath  string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite ledger path (overrides config)")
}
