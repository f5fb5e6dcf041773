package ledger

import (
	"encoding/csv"
	"io"
	"time"
)

var csvHeader = []string{"id", "account_id", "symbol", "side", "quantity", "price", "total_amount", "status", "executed_at"}

// WriteTransactionsCSV writes the audit trail as CSV with a header row.
func WriteTransactionsCSV(w io.Writer, txns []Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range txns {
		err := cw.Write([]string{
			t.ID,
			t.AccountID,
			t.Symbol,
			string(t.Side),
			t.Quantity.String(),
			t.Price.StringFixed(CurrencyPlaces),
			t.TotalAmount.StringFixed(CurrencyPlaces),
			t.Status,
			t.ExecutedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
