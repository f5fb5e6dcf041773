package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const transactionColumns = `id, account_id, symbol, side, quantity, price, total_amount, status, executed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (Transaction, error) {
	var (
		t    Transaction
		side string
	)
	err := r.Scan(
		&t.ID,
		&t.AccountID,
		&t.Symbol,
		&side,
		&t.Quantity,
		&t.Price,
		&t.TotalAmount,
		&t.Status,
		&t.ExecutedAt,
	)
	t.Side = Side(side)
	return t, err
}

// Transaction returns a single transaction by ID.
func (s *SQLiteStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %q: %w", id, ErrTransactionNotFound)
	}
	return t, err
}

// Transactions returns the account's transactions matching f, newest first.
func (s *SQLiteStore) Transactions(ctx context.Context, accountID string, f TransactionFilter) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ?`
	args := []any{accountID}

	if f.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, f.Symbol)
	}
	if f.Side != "" {
		query += " AND side = ?"
		args = append(args, string(f.Side))
	}
	if !f.Since.IsZero() {
		query += " AND executed_at >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += " AND executed_at < ?"
		args = append(args, f.Until.UTC())
	}
	query += " ORDER BY executed_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
