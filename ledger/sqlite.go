package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLite(path string) (*SQLiteStore, error) {
	// Immediate transactions take the write lock at BEGIN, so the prior
	// check in Apply and the writes after it cannot interleave with
	// another process sharing the file.
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer keeps SQLITE_BUSY out of Apply; account locks
	// already serialize trades per account.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, a Account) error {
	if a.ID == "" {
		return fmt.Errorf("create account: empty id")
	}
	if a.Cash.IsNegative() {
		return fmt.Errorf("create account %q: negative cash", a.ID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, currency, cash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Currency, a.Cash, a.CreatedAt.UTC(),
	)
	if isConstraint(err) {
		return fmt.Errorf("create account %q: %w", a.ID, ErrDuplicate)
	}
	return err
}

func (s *SQLiteStore) Account(ctx context.Context, id string) (Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, currency, cash, created_at
		FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Currency, &a.Cash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %q: %w", id, ErrAccountNotFound)
	}
	return a, err
}

func (s *SQLiteStore) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, currency, cash, created_at
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Currency, &a.Cash, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RegisterStock(ctx context.Context, st Stock) error {
	if st.Symbol == "" {
		return fmt.Errorf("register stock: empty symbol")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocks (symbol, sector, daily_volume) VALUES (?, ?, ?)`,
		st.Symbol, st.Sector, st.DailyVolume,
	)
	if isConstraint(err) {
		return fmt.Errorf("register stock %q: %w", st.Symbol, ErrDuplicate)
	}
	return err
}

func (s *SQLiteStore) Stock(ctx context.Context, symbol string) (Stock, error) {
	var st Stock
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, sector, daily_volume FROM stocks WHERE symbol = ?`, symbol,
	).Scan(&st.Symbol, &st.Sector, &st.DailyVolume)
	if errors.Is(err, sql.ErrNoRows) {
		return Stock{}, fmt.Errorf("stock %q: %w", symbol, ErrStockNotFound)
	}
	return st, err
}

func (s *SQLiteStore) Stocks(ctx context.Context) ([]Stock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, sector, daily_volume FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stock
	for rows.Next() {
		var st Stock
		if err := rows.Scan(&st.Symbol, &st.Sector, &st.DailyVolume); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ResetDailyVolumes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE stocks SET daily_volume = 0`)
	return err
}

func (s *SQLiteStore) RecordPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	if !price.IsPositive() {
		return fmt.Errorf("record price %s: price must be positive, got %s", symbol, price)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prices (symbol, price, recorded_at) VALUES (?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			price = excluded.price,
			recorded_at = excluded.recorded_at`,
		symbol, price, at.UTC(),
	)
	if isConstraint(err) {
		return fmt.Errorf("record price %q: %w", symbol, ErrStockNotFound)
	}
	return err
}

// LastPrices returns the recorded prices ordered by symbol.
func (s *SQLiteStore) LastPrices(ctx context.Context) ([]StockPrice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, recorded_at FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockPrice
	for rows.Next() {
		var p StockPrice
		if err := rows.Scan(&p.Symbol, &p.Price, &p.At); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Holding(ctx context.Context, accountID, symbol string) (Holding, error) {
	var h Holding
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, symbol, quantity, average_cost, cost_basis, updated_at
		FROM holdings WHERE account_id = ? AND symbol = ?`, accountID, symbol,
	).Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AverageCost, &h.Cost, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Holding{}, fmt.Errorf("holding %s/%s: %w", accountID, symbol, ErrHoldingNotFound)
	}
	return h, err
}

func (s *SQLiteStore) Holdings(ctx context.Context, accountID string) ([]Holding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, symbol, quantity, average_cost, cost_basis, updated_at
		FROM holdings WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holding
	for rows.Next() {
		var h Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.AverageCost, &h.Cost, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Apply runs the mutation in one SQL transaction. Cancellation of ctx is
// ignored once Apply starts; a trade either commits or rolls back whole.
func (s *SQLiteStore) Apply(ctx context.Context, m Mutation) Outcome {
	if err := m.Validate(); err != nil {
		return rolledBack(err)
	}
	ctx = context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rolledBack(fmt.Errorf("begin: %w", err))
	}

	if err := applyTx(ctx, tx, m); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return rolledBack(err)
	}
	if err := tx.Commit(); err != nil {
		return rolledBack(fmt.Errorf("commit: %w", err))
	}
	return committed()
}

func applyTx(ctx context.Context, tx *sql.Tx, m Mutation) error {
	if err := checkPriorTx(ctx, tx, m); err != nil {
		return fmt.Errorf("%s step: %w", StepCash, err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE accounts SET cash = ? WHERE id = ?`, m.Cash, m.AccountID)
	if err := expectOne(res, err, fmt.Errorf("account %q: %w", m.AccountID, ErrAccountNotFound)); err != nil {
		return fmt.Errorf("%s step: %w", StepCash, err)
	}

	h := m.Holding
	if h.Quantity.IsZero() {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM holdings WHERE account_id = ? AND symbol = ?`, h.AccountID, h.Symbol)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO holdings (account_id, symbol, quantity, average_cost, cost_basis, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (account_id, symbol) DO UPDATE SET
				quantity = excluded.quantity,
				average_cost = excluded.average_cost,
				cost_basis = excluded.cost_basis,
				updated_at = excluded.updated_at`,
			h.AccountID, h.Symbol, h.Quantity, h.AverageCost, h.Cost, h.UpdatedAt.UTC())
	}
	if err != nil {
		return fmt.Errorf("%s step: %w", StepHolding, err)
	}

	t := m.Transaction
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, account_id, symbol, side, quantity, price, total_amount, status, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccountID, t.Symbol, string(t.Side), t.Quantity, t.Price,
		t.TotalAmount, t.Status, t.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%s step: %w", StepTransaction, err)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE stocks SET daily_volume = daily_volume + ? WHERE symbol = ?`,
		m.VolumeDelta, t.Symbol)
	if err := expectOne(res, err, fmt.Errorf("stock %q: %w", t.Symbol, ErrStockNotFound)); err != nil {
		return fmt.Errorf("%s step: %w", StepVolume, err)
	}
	return nil
}

// checkPriorTx reads the account's cash and holding inside tx and compares
// them with the values m was computed from.
func checkPriorTx(ctx context.Context, tx *sql.Tx, m Mutation) error {
	var cash decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT cash FROM accounts WHERE id = ?`, m.AccountID).Scan(&cash)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %q: %w", m.AccountID, ErrAccountNotFound)
	}
	if err != nil {
		return err
	}

	held := decimal.Zero
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM holdings WHERE account_id = ? AND symbol = ?`,
		m.AccountID, m.Holding.Symbol,
	).Scan(&held)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return checkPrior(m, cash, held)
}

func expectOne(res sql.Result, err error, missing error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return missing
	}
	return nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
