package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/ledger"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the transaction journal",
	Long: `Query and export the append-only transaction log.

Subcommands:
  show   - Show a single transaction by ID
  list   - List an account's transactions with filters
  today  - List an account's transactions executed today
  day    - List an account's transactions executed on a specific day

Examples:
  ledger journal show 01HQZX3J6N8Y2C0K9T5V7W4MAB
  ledger journal list acct-1 --symbol ACME --format csv
  ledger journal today acct-1
  ledger journal day acct-1 2024-01-15`,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Show details of a specific transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalListCmd = &cobra.Command{
	Use:   "list <account>",
	Short: "List transactions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalList,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today <account>",
	Short: "List transactions executed today",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <account> <YYYY-MM-DD>",
	Short: "List transactions executed on a specific day",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalDay,
}

var (
	journalFormat string
	journalSymbol string
	journalSide   string
	journalSince  string
	journalUntil  string
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalFormat, "format", "f", "org", "output format: org or csv")
	journalListCmd.Flags().StringVar(&journalSymbol, "symbol", "", "only this symbol")
	journalListCmd.Flags().StringVar(&journalSide, "side", "", "only BUY or SELL")
	journalListCmd.Flags().StringVar(&journalSince, "since", "", "executed at or after (RFC3339 or YYYY-MM-DD)")
	journalListCmd.Flags().StringVar(&journalUntil, "until", "", "executed before (RFC3339 or YYYY-MM-DD)")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 0, "maximum number of transactions")
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.store.Transaction(ctxOf(cmd), args[0])
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	return writeJournal(cmd.OutOrStdout(), []ledger.Transaction{t})
}

func runJournalList(cmd *cobra.Command, args []string) error {
	f := ledger.TransactionFilter{Symbol: strings.ToUpper(journalSymbol), Limit: journalLimit}
	if journalSide != "" {
		side, err := ledger.ParseSide(journalSide)
		if err != nil {
			return err
		}
		f.Side = side
	}
	var err error
	if f.Since, err = parseWhen(journalSince); err != nil {
		return fmt.Errorf("since: %w", err)
	}
	if f.Until, err = parseWhen(journalUntil); err != nil {
		return fmt.Errorf("until: %w", err)
	}
	return listJournal(cmd, args[0], f)
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	loc := time.Local
	start, end, err := dayBounds(loc, time.Now().In(loc).Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return listJournal(cmd, args[0], ledger.TransactionFilter{Since: start, Until: end})
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	start, end, err := dayBounds(time.Local, args[1])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return listJournal(cmd, args[0], ledger.TransactionFilter{Since: start, Until: end})
}

func listJournal(cmd *cobra.Command, accountID string, f ledger.TransactionFilter) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := ctxOf(cmd)
	if _, err := a.store.Account(ctx, accountID); err != nil {
		return err
	}
	txns, err := a.store.Transactions(ctx, accountID, f)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	return writeJournal(cmd.OutOrStdout(), txns)
}

func writeJournal(out io.Writer, txns []ledger.Transaction) error {
	switch journalFormat {
	case "csv":
		return ledger.WriteTransactionsCSV(out, txns)
	case "org", "":
		_, err := fmt.Fprint(out, ledger.FormatTransactionsOrg(txns))
		return err
	default:
		return fmt.Errorf("unknown format %q (want org or csv)", journalFormat)
	}
}

// parseWhen accepts RFC3339 or a local date. Empty means unbounded.
func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
