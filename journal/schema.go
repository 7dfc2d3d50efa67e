package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	ticket INTEGER PRIMARY KEY,
	strategy_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	volume REAL NOT NULL,
	open_time DATETIME,
	close_time DATETIME NOT NULL,
	duration_sec INTEGER NOT NULL,
	open_price REAL NOT NULL,
	close_price REAL NOT NULL,
	sl REAL NOT NULL,
	tp REAL NOT NULL,
	pnl REAL NOT NULL,
	profit REAL NOT NULL,
	commission REAL NOT NULL,
	swap REAL NOT NULL,
	close_reason TEXT NOT NULL,
	meta_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id);

CREATE TABLE IF NOT EXISTS equity_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	open_positions INTEGER NOT NULL,
	strategy_pl TEXT
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity_history(timestamp);
`

const PostgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
	ticket BIGINT PRIMARY KEY,
	strategy_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	open_time TIMESTAMPTZ,
	close_time TIMESTAMPTZ NOT NULL,
	duration_sec BIGINT NOT NULL,
	open_price DOUBLE PRECISION NOT NULL,
	close_price DOUBLE PRECISION NOT NULL,
	sl DOUBLE PRECISION NOT NULL,
	tp DOUBLE PRECISION NOT NULL,
	pnl DOUBLE PRECISION NOT NULL,
	profit DOUBLE PRECISION NOT NULL,
	commission DOUBLE PRECISION NOT NULL,
	swap DOUBLE PRECISION NOT NULL,
	close_reason TEXT NOT NULL,
	meta_json JSONB
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);

CREATE TABLE IF NOT EXISTS equity_history (
	id BIGSERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	balance DOUBLE PRECISION NOT NULL,
	equity DOUBLE PRECISION NOT NULL,
	open_positions INTEGER NOT NULL,
	strategy_pl JSONB
);
`
