package migrations

import (
	"database/sql"
)

func init() {
	RegisterMigration(&Migration{
		Version: 1,
		Name:    "initial_schema",
		Up:      initialSchemaUp,
		Down:    initialSchemaDown,
	})
}

func initialSchemaUp(tx *sql.Tx) error {
	schema := `
	CREATE EXTENSION IF NOT EXISTS pgcrypto;

	-- Tradable instruments. Read-only for the engine.
	CREATE TABLE IF NOT EXISTS instruments (
		symbol VARCHAR(20) PRIMARY KEY,
		quote_currency VARCHAR(10) NOT NULL DEFAULT 'USD',
		tick_size DECIMAL(20, 10) NOT NULL DEFAULT 0.01,
		lot_size DECIMAL(20, 10) NOT NULL DEFAULT 0.0001,
		price_decimals INT NOT NULL DEFAULT 2,
		quantity_decimals INT NOT NULL DEFAULT 4,
		max_leverage INT NOT NULL DEFAULT 100,
		min_order_size DECIMAL(20, 10) NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	-- Trading accounts. net_worth is the realized balance and
	-- excludes unrealized PnL of open positions.
	CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		starting_balance DECIMAL(20, 10) NOT NULL,
		available_margin DECIMAL(20, 10) NOT NULL DEFAULT 0,
		total_margin_required DECIMAL(20, 10) NOT NULL DEFAULT 0,
		net_worth DECIMAL(20, 10) NOT NULL DEFAULT 0,
		realized_pnl DECIMAL(20, 10) NOT NULL DEFAULT 0,
		total_pnl DECIMAL(20, 10) DEFAULT 0,
		account_status VARCHAR(20) NOT NULL DEFAULT 'active'
			CHECK (account_status IN ('active', 'funded', 'passed', 'breached', 'closed')),
		breach_reason TEXT,
		day_start_balance DECIMAL(20, 10),
		day_start_equity DECIMAL(20, 10),
		day_start_date DATE,
		current_phase VARCHAR(50),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX idx_accounts_user_id ON accounts(user_id);
	CREATE INDEX idx_accounts_status ON accounts(account_status);
	CREATE INDEX idx_accounts_day_start_date ON accounts(day_start_date);

	-- Positions. Created by place_market_order, closed only by
	-- close_position_atomic, never deleted.
	CREATE TABLE IF NOT EXISTS positions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		account_id UUID NOT NULL REFERENCES accounts(id),
		user_id UUID,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL CHECK (direction IN ('long', 'short')),
		margin_mode VARCHAR(10) NOT NULL DEFAULT 'isolated',
		quantity DECIMAL(20, 10) NOT NULL,
		original_quantity DECIMAL(20, 10),
		leverage DECIMAL(10, 2) NOT NULL DEFAULT 1,
		entry_price DECIMAL(20, 10) NOT NULL,
		liquidation_price DECIMAL(20, 10),
		isolated_margin DECIMAL(20, 10) NOT NULL,
		trade_fees DECIMAL(20, 10) NOT NULL DEFAULT 0,
		status VARCHAR(10) NOT NULL DEFAULT 'open'
			CHECK (status IN ('open', 'closed')),
		close_reason VARCHAR(20)
			CHECK (close_reason IN ('manual', 'sl', 'tp', 'liquidation', 'admin_force')),
		exit_price DECIMAL(20, 10),
		exit_timestamp TIMESTAMPTZ,
		realized_pnl DECIMAL(20, 10),
		entry_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX idx_positions_status ON positions(status);
	CREATE INDEX idx_positions_account_status ON positions(account_id, status);
	CREATE INDEX idx_positions_symbol ON positions(symbol);

	-- Orders. SL/TP orders link to their parent position and carry
	-- the opposite direction.
	CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		account_id UUID NOT NULL REFERENCES accounts(id),
		user_id UUID,
		position_id UUID REFERENCES positions(id),
		order_type VARCHAR(12) NOT NULL
			CHECK (order_type IN ('market', 'limit', 'stop', 'stop_limit')),
		direction VARCHAR(5) NOT NULL CHECK (direction IN ('long', 'short')),
		quantity DECIMAL(20, 10) NOT NULL,
		filled_quantity DECIMAL(20, 10) NOT NULL DEFAULT 0,
		leverage DECIMAL(10, 2),
		price DECIMAL(20, 10),
		stop_price DECIMAL(20, 10),
		status VARCHAR(10) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'partial', 'filled', 'cancelled')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX idx_orders_pending_sltp ON orders(position_id, status)
		WHERE position_id IS NOT NULL AND status = 'pending';
	CREATE INDEX idx_orders_account_id ON orders(account_id);

	-- Append-only audit trail.
	CREATE TABLE IF NOT EXISTS activity (
		id BIGSERIAL PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		type VARCHAR(30) NOT NULL,
		title TEXT NOT NULL,
		sub TEXT,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		pnl DECIMAL(20, 10)
	);

	CREATE INDEX idx_activity_account_ts ON activity(account_id, ts);

	-- Append-only equity curve, one row per close.
	CREATE TABLE IF NOT EXISTS equity_history (
		id BIGSERIAL PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		equity DECIMAL(20, 10) NOT NULL,
		pnl DECIMAL(20, 10) NOT NULL DEFAULT 0
	);

	CREATE INDEX idx_equity_history_account_ts ON equity_history(account_id, ts);

	-- Quotes for symbols the streaming feed does not carry. Written
	-- by an external pricing job, read by the fallback loader.
	CREATE TABLE IF NOT EXISTS price_cache (
		symbol VARCHAR(20) PRIMARY KEY,
		current_price DECIMAL(20, 10) NOT NULL,
		current_bid DECIMAL(20, 10),
		current_ask DECIMAL(20, 10),
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`

	_, err := tx.Exec(schema)
	return err
}

func initialSchemaDown(tx *sql.Tx) error {
	drop := `
	DROP TABLE IF EXISTS price_cache;
	DROP TABLE IF EXISTS equity_history;
	DROP TABLE IF EXISTS activity;
	DROP TABLE IF EXISTS orders;
	DROP TABLE IF EXISTS positions;
	DROP TABLE IF EXISTS accounts;
	DROP TABLE IF EXISTS instruments;
	`
	_, err := tx.Exec(drop)
	return err
}
