package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FormatTransactionOrg renders a Transaction as an Org-mode block with the
// structured facts in a PROPERTIES drawer.
func FormatTransactionOrg(t Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (%s)\n", t.Side, t.Quantity, t.Symbol, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":ACCOUNT: %s\n", t.AccountID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %s\n", t.Quantity)
	fmt.Fprintf(&b, ":PRICE: %s\n", t.Price.StringFixed(CurrencyPlaces))
	fmt.Fprintf(&b, ":TOTAL: %s\n", t.TotalAmount.StringFixed(CurrencyPlaces))
	fmt.Fprintf(&b, ":STATUS: %s\n", t.Status)
	fmt.Fprintf(&b, ":EXECUTED_AT: %s\n", t.ExecutedAt.UTC().Format(time.RFC3339))
	b.WriteString(":END:\n")
	return b.String()
}

// FormatTransactionsOrg renders multiple transactions separated by blank lines.
func FormatTransactionsOrg(txns []Transaction) string {
	var b strings.Builder
	for i, t := range txns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTransactionOrg(t))
	}
	return b.String()
}

// shortID keeps the tail of a ULID, where the random part lives.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
