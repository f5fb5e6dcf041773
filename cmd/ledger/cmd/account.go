package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/id"
	"github.com/rustyeddy/ledger/ledger"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Open and inspect cash accounts",
}

var accountOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new account",
	Long: `Open a cash account. Without --id a random identifier is assigned.

Example:
  ledger account open --name "Retirement" --cash 25000`,
	Args: cobra.NoArgs,
	RunE: runAccountOpen,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

var (
	accountID       string
	accountName     string
	accountCurrency string
	accountCash     string
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountOpenCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountShowCmd)

	accountOpenCmd.Flags().StringVar(&accountID, "id", "", "account id (default: random)")
	accountOpenCmd.Flags().StringVar(&accountName, "name", "", "display name")
	accountOpenCmd.Flags().StringVar(&accountCurrency, "currency", "USD", "account currency")
	accountOpenCmd.Flags().StringVar(&accountCash, "cash", "0", "opening cash balance")
}

func runAccountOpen(cmd *cobra.Command, args []string) error {
	cash, err := decimal.NewFromString(accountCash)
	if err != nil {
		return fmt.Errorf("cash: %w", err)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	acct := ledger.Account{
		ID:        accountID,
		Name:      accountName,
		Currency:  strings.ToUpper(accountCurrency),
		Cash:      cash,
		CreatedAt: time.Now().UTC(),
	}
	if acct.ID == "" {
		acct.ID = id.NewAccountID()
	}
	if err := a.store.CreateAccount(ctxOf(cmd), acct); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Opened account %s with %s %s\n", acct.ID, money(acct.Cash), acct.Currency)
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	accts, err := a.store.Accounts(ctxOf(cmd))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCURRENCY\tCASH\tOPENED")
	for _, acct := range accts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			acct.ID, acct.Name, acct.Currency, money(acct.Cash), acct.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := ctxOf(cmd)
	acct, err := a.store.Account(ctx, args[0])
	if err != nil {
		return err
	}
	holdings, err := a.store.Holdings(ctx, acct.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account %s (%s)\n", acct.ID, acct.Name)
	fmt.Fprintf(out, "  Cash:     %s %s\n", money(acct.Cash), acct.Currency)
	fmt.Fprintf(out, "  Opened:   %s\n", acct.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Holdings: %d\n", len(holdings))
	for _, h := range holdings {
		fmt.Fprintf(out, "    %-8s %s @ %s\n", h.Symbol, h.Quantity, money(h.AverageCost))
	}
	return nil
}
