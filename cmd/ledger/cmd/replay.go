package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/ledger/broker"
	"github.com/rustyeddy/ledger/broker/engine"
	"github.com/rustyeddy/ledger/ledger"
	"github.com/rustyeddy/ledger/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.csv>",
	Short: "Replay a CSV script of quotes and orders",
	Long: `Replay quotes and orders through the ledger on a simulated clock.

Each row is time,symbol,price[,event,account,quantity,limit]. The quote is
published first; BUY or SELL rows then trade at limit (or the quoted price).
The session check and transaction timestamps use the row's time.

Example:
  ledger replay session.csv --from 2024-03-12 --to 2024-03-13`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayFrom    string
	replayTo      string
	replayVerbose bool
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "skip rows before this time (RFC3339 or YYYY-MM-DD)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "skip rows at or after this time")
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "print every order result")
}

func runReplay(cmd *cobra.Command, args []string) error {
	from, err := parseWhen(replayFrom)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	to, err := parseWhen(replayTo)
	if err != nil {
		return fmt.Errorf("to: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	policy, err := a.cfg.RiskPolicy()
	if err != nil {
		return err
	}
	clock := &replay.Clock{}
	eng := engine.NewEngine(a.store, a.quotes, a.locks, a.session,
		engine.WithPolicy(policy),
		engine.WithLogger(a.log),
		engine.WithClock(clock.Now),
	)

	rp := &replay.Replayer{
		Quotes: a.quotes,
		Broker: eng,
		Clock:  clock,
		Log:    a.log.With().Str("component", "replay").Logger(),
		From:   from,
		To:     to,
	}
	sum, err := rp.Run(ctxOf(cmd), f)
	if err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if replayVerbose {
		for _, r := range sum.Results {
			printReplayResult(cmd, r)
		}
	}
	fmt.Fprintf(out, "Rows:      %d\n", sum.Rows)
	fmt.Fprintf(out, "Orders:    %d\n", sum.Trades)
	fmt.Fprintf(out, "Committed: %d\n", sum.Committed)
	fmt.Fprintf(out, "Failed:    %d\n", sum.Failed)

	reasons := make([]string, 0, len(sum.Rejected))
	for r := range sum.Rejected {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(out, "Rejected:  %d %s\n", sum.Rejected[broker.Reason(r)], r)
	}
	return nil
}

func printReplayResult(cmd *cobra.Command, r replay.Result) {
	out := cmd.OutOrStdout()
	row := r.Row
	mark, detail := "✓", r.Result.TransactionID
	if !r.Result.Success {
		mark, detail = "✗", string(r.Result.Reason)
	}
	fmt.Fprintf(out, "%s %4d %s %s %s %s @ %s %s\n", mark, row.Line,
		row.Time.UTC().Format("2006-01-02 15:04:05"), row.Account, row.Event,
		row.Symbol, row.Limit.StringFixed(ledger.CurrencyPlaces), detail)
}
