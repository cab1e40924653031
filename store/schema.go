// store/schema.go
package store

// Prices and currency amounts are stored as TEXT and parsed into
// decimal.Decimal, so values round-trip exactly. Every per-simulation table
// cascades on simulation delete; candles are global, shared, read-only
// history keyed by (timeframe, timestamp).
const Schema = `
CREATE TABLE IF NOT EXISTS candles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timeframe TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	open TEXT NOT NULL,
	high TEXT NOT NULL,
	low TEXT NOT NULL,
	close TEXT NOT NULL,
	volume INTEGER NOT NULL DEFAULT 0,
	UNIQUE (timeframe, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_candles_timestamp ON candles(timestamp);

CREATE TABLE IF NOT EXISTS simulations (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'created'
		CHECK (status IN ('created', 'running', 'paused', 'stopped')),
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	sim_time DATETIME NOT NULL,
	speed TEXT NOT NULL DEFAULT '1',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL UNIQUE REFERENCES simulations(id) ON DELETE CASCADE,
	initial_balance TEXT NOT NULL,
	balance TEXT NOT NULL,
	realized_pnl TEXT NOT NULL DEFAULT '0',
	consecutive_losses INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
	side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
	lot_size TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_simulation ON orders(simulation_id);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
	lot_size TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	sl_price TEXT,
	sl_pips TEXT,
	tp_price TEXT,
	tp_pips TEXT,
	status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
	opened_at DATETIME NOT NULL,
	closed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_positions_simulation_status ON positions(simulation_id, status);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
	position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
	side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
	lot_size TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	realized_pnl_pips TEXT NOT NULL,
	opened_at DATETIME NOT NULL,
	closed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_simulation_closed ON trades(simulation_id, closed_at);

CREATE TABLE IF NOT EXISTS pending_orders (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
	order_type TEXT NOT NULL CHECK (order_type IN ('limit', 'stop')),
	side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
	lot_size TEXT NOT NULL,
	trigger_price TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'executed', 'cancelled')),
	created_at DATETIME NOT NULL,
	executed_at DATETIME,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_orders_simulation_status ON pending_orders(simulation_id, status);
`
