package ledger

const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT 'USD',
	cash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS stocks (
	symbol TEXT PRIMARY KEY,
	sector TEXT NOT NULL DEFAULT '',
	daily_volume INTEGER NOT NULL DEFAULT 0 CHECK (daily_volume >= 0)
);

CREATE TABLE IF NOT EXISTS holdings (
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL REFERENCES stocks(symbol),
	quantity TEXT NOT NULL,
	average_cost TEXT NOT NULL,
	cost_basis TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS prices (
	symbol TEXT PRIMARY KEY REFERENCES stocks(symbol),
	price TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	symbol TEXT NOT NULL REFERENCES stocks(symbol),
	side TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	total_amount TEXT NOT NULL,
	status TEXT NOT NULL,
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_time ON transactions(account_id, executed_at);

CREATE TRIGGER IF NOT EXISTS transactions_no_update BEFORE UPDATE ON transactions
BEGIN
	SELECT RAISE(ABORT, 'transactions are append-only');
END;

CREATE TRIGGER IF NOT EXISTS transactions_no_delete BEFORE DELETE ON transactions
BEGIN
	SELECT RAISE(ABORT, 'transactions are append-only');
END;
`
