package migrations

import (
	"database/sql"
)

func init() {
	RegisterMigration(&Migration{
		Version: 2,
		Name:    "atomic_procedures",
		Up:      atomicProceduresUp,
		Down:    atomicProceduresDown,
	})
}

// The three procedures below are the write paths for positions,
// orders and breaches; the only other engine write is the single-row
// day-start snapshot UPDATE in the ledger gateway. Each takes the accounts row lock first (SELECT ... FOR
// UPDATE), which is the single serialization point: engine-issued
// closes, user-initiated placements and manual closes against the
// same account are linearized in account-row order.
func atomicProceduresUp(tx *sql.Tx) error {
	procedures := `
	CREATE OR REPLACE FUNCTION place_market_order(
		p_account_id UUID,
		p_user_id UUID,
		p_symbol VARCHAR,
		p_direction VARCHAR,
		p_margin_mode VARCHAR,
		p_quantity NUMERIC,
		p_leverage NUMERIC,
		p_exec_price NUMERIC,
		p_margin NUMERIC,
		p_fee NUMERIC,
		p_liquidation_price NUMERIC,
		p_instrument_config JSONB,
		p_instrument_price NUMERIC,
		p_sl_price NUMERIC DEFAULT NULL,
		p_tp_price NUMERIC DEFAULT NULL
	) RETURNS JSONB AS $$
	DECLARE
		v_account accounts%ROWTYPE;
		v_position positions%ROWTYPE;
		v_opposite VARCHAR(5);
	BEGIN
		SELECT * INTO v_account
		FROM accounts
		WHERE id = p_account_id
		  AND account_status NOT IN ('breached', 'closed')
		FOR UPDATE;

		IF NOT FOUND THEN
			RAISE EXCEPTION 'account_not_found';
		END IF;

		IF p_margin > v_account.available_margin THEN
			RAISE EXCEPTION 'insufficient_margin';
		END IF;

		INSERT INTO positions (
			account_id, user_id, symbol, direction, margin_mode,
			quantity, original_quantity, leverage, entry_price,
			liquidation_price, isolated_margin, trade_fees,
			status, entry_timestamp
		) VALUES (
			p_account_id, p_user_id, p_symbol, p_direction, p_margin_mode,
			p_quantity, p_quantity, p_leverage, p_exec_price,
			p_liquidation_price, p_margin, p_fee,
			'open', now()
		) RETURNING * INTO v_position;

		UPDATE accounts SET
			available_margin = available_margin - p_margin,
			total_margin_required = total_margin_required + p_margin,
			net_worth = net_worth - p_fee,
			updated_at = now()
		WHERE id = p_account_id;

		v_opposite := CASE WHEN p_direction = 'long' THEN 'short' ELSE 'long' END;

		IF p_sl_price IS NOT NULL THEN
			INSERT INTO orders (
				account_id, user_id, position_id, order_type,
				direction, quantity, leverage, stop_price, status
			) VALUES (
				p_account_id, p_user_id, v_position.id, 'stop',
				v_opposite, p_quantity, p_leverage, p_sl_price, 'pending'
			);
		END IF;

		IF p_tp_price IS NOT NULL THEN
			INSERT INTO orders (
				account_id, user_id, position_id, order_type,
				direction, quantity, leverage, price, status
			) VALUES (
				p_account_id, p_user_id, v_position.id, 'limit',
				v_opposite, p_quantity, p_leverage, p_tp_price, 'pending'
			);
		END IF;

		INSERT INTO activity (account_id, type, title, sub, pnl)
		VALUES (
			p_account_id, 'position_opened',
			format('%s %s %s @ %s', initcap(p_direction), p_quantity::text, p_symbol, p_exec_price::text),
			format('leverage %sx, margin %s', p_leverage::text, p_margin::text),
			0
		);

		INSERT INTO equity_history (account_id, ts, equity, pnl)
		VALUES (p_account_id, now(), v_account.net_worth - p_fee, 0);

		RETURN jsonb_build_object(
			'id', v_position.id::text,
			'account_id', v_position.account_id::text,
			'symbol', v_position.symbol,
			'direction', v_position.direction,
			'quantity', v_position.quantity::text,
			'leverage', v_position.leverage::text,
			'entry_price', v_position.entry_price::text,
			'liquidation_price', COALESCE(v_position.liquidation_price, 0)::text,
			'isolated_margin', v_position.isolated_margin::text,
			'trade_fees', v_position.trade_fees::text,
			'status', v_position.status
		);
	END;
	$$ LANGUAGE plpgsql;

	CREATE OR REPLACE FUNCTION close_position_atomic(
		p_position_id UUID,
		p_account_id UUID,
		p_exit_price NUMERIC,
		p_exit_timestamp TIMESTAMPTZ,
		p_realized_pnl NUMERIC,
		p_close_fee NUMERIC,
		p_existing_fees NUMERIC,
		p_isolated_margin NUMERIC,
		p_close_reason VARCHAR,
		p_triggered_order_id UUID,
		p_symbol VARCHAR,
		p_direction VARCHAR,
		p_quantity NUMERIC
	) RETURNS VOID AS $$
	DECLARE
		v_net_worth NUMERIC;
	BEGIN
		PERFORM 1 FROM accounts WHERE id = p_account_id FOR UPDATE;
		IF NOT FOUND THEN
			RAISE EXCEPTION 'account_not_found';
		END IF;

		UPDATE positions SET
			status = 'closed',
			close_reason = p_close_reason,
			exit_price = p_exit_price,
			exit_timestamp = p_exit_timestamp,
			realized_pnl = p_realized_pnl,
			trade_fees = p_existing_fees + p_close_fee
		WHERE id = p_position_id AND status = 'open';

		IF NOT FOUND THEN
			RAISE EXCEPTION 'not_open';
		END IF;

		IF p_triggered_order_id IS NOT NULL THEN
			UPDATE orders SET
				status = 'filled',
				filled_quantity = p_quantity,
				updated_at = now()
			WHERE id = p_triggered_order_id;
		END IF;

		UPDATE orders SET
			status = 'cancelled',
			updated_at = now()
		WHERE position_id = p_position_id AND status = 'pending';

		UPDATE accounts SET
			available_margin = available_margin + p_isolated_margin + p_realized_pnl - p_close_fee,
			total_margin_required = GREATEST(total_margin_required - p_isolated_margin, 0),
			realized_pnl = realized_pnl + p_realized_pnl,
			total_pnl = total_pnl + p_realized_pnl,
			net_worth = net_worth + p_realized_pnl - p_close_fee,
			updated_at = now()
		WHERE id = p_account_id
		RETURNING net_worth INTO v_net_worth;

		INSERT INTO equity_history (account_id, ts, equity, pnl)
		VALUES (p_account_id, p_exit_timestamp, v_net_worth, p_realized_pnl);

		INSERT INTO activity (account_id, type, title, sub, ts, pnl)
		VALUES (
			p_account_id, 'position_closed',
			format('%s %s %s closed @ %s', initcap(p_direction), p_quantity::text, p_symbol, p_exit_price::text),
			format('reason: %s', p_close_reason),
			p_exit_timestamp, p_realized_pnl
		);
	END;
	$$ LANGUAGE plpgsql;

	CREATE OR REPLACE FUNCTION breach_account_atomic(
		p_account_id UUID,
		p_reason TEXT
	) RETURNS VOID AS $$
	BEGIN
		PERFORM 1 FROM accounts WHERE id = p_account_id FOR UPDATE;
		IF NOT FOUND THEN
			RAISE EXCEPTION 'account_not_found';
		END IF;

		UPDATE accounts SET
			account_status = 'breached',
			breach_reason = p_reason,
			updated_at = now()
		WHERE id = p_account_id;

		INSERT INTO activity (account_id, type, title, sub)
		VALUES (p_account_id, 'breach', 'Account breached', p_reason);
	END;
	$$ LANGUAGE plpgsql;
	`

	_, err := tx.Exec(procedures)
	return err
}

func atomicProceduresDown(tx *sql.Tx) error {
	drop := `
	DROP FUNCTION IF EXISTS breach_account_atomic(UUID, TEXT);
	DROP FUNCTION IF EXISTS close_position_atomic(UUID, UUID, NUMERIC, TIMESTAMPTZ, NUMERIC, NUMERIC, NUMERIC, NUMERIC, VARCHAR, UUID, VARCHAR, VARCHAR, NUMERIC);
	DROP FUNCTION IF EXISTS place_market_order(UUID, UUID, VARCHAR, VARCHAR, VARCHAR, NUMERIC, NUMERIC, NUMERIC, NUMERIC, NUMERIC, NUMERIC, JSONB, NUMERIC, NUMERIC, NUMERIC);
	`
	_, err := tx.Exec(drop)
	return err
}
