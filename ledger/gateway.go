package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
)

// Query limits. The monitor works in bounded batches so a runaway
// ledger can never blow up a tick.
const (
	MaxOpenPositions = 500
	MaxPendingOrders = 1000
	MaxDayStartBatch = 100
)

// Gateway is the pgx-pool-backed implementation of the ledger port.
type Gateway struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// Connect opens a connection pool against dsn and verifies it with a
// ping before handing the gateway back.
func Connect(ctx context.Context, dsn string, log *logging.Logger) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	return &Gateway{pool: pool, log: log}, nil
}

// Close releases the connection pool.
func (g *Gateway) Close() {
	g.pool.Close()
}

const positionColumns = `
	id::text, account_id::text, symbol, direction,
	quantity::text, leverage::text, entry_price::text,
	COALESCE(liquidation_price, 0)::text,
	isolated_margin::text, COALESCE(trade_fees, 0)::text, status`

// ListOpenPositions returns up to limit open positions, oldest first.
func (g *Gateway) ListOpenPositions(ctx context.Context, limit int) ([]Position, error) {
	if limit <= 0 || limit > MaxOpenPositions {
		limit = MaxOpenPositions
	}
	rows, err := g.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE status = 'open'
		ORDER BY entry_timestamp
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list open positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (Position, error) {
	var p Position
	var qty, lev, entry, liq, margin, fees string
	err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &p.Direction,
		&qty, &lev, &entry, &liq, &margin, &fees, &p.Status)
	if err != nil {
		return Position{}, fmt.Errorf("ledger: scan position: %w", err)
	}
	fields := []struct {
		raw string
		dst *money.Amount
	}{
		{qty, &p.Quantity}, {lev, &p.Leverage}, {entry, &p.EntryPrice},
		{liq, &p.LiquidationPrice}, {margin, &p.IsolatedMargin}, {fees, &p.TradeFees},
	}
	for _, f := range fields {
		v, err := money.Parse(f.raw)
		if err != nil {
			return Position{}, fmt.Errorf("ledger: position %s: %w", p.ID, err)
		}
		*f.dst = v
	}
	return p, nil
}

// ListPendingSLTPOrders returns up to limit pending orders that are
// linked to a position, in insertion order. These are the stop-loss
// and take-profit triggers the matcher evaluates each tick.
func (g *Gateway) ListPendingSLTPOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 || limit > MaxPendingOrders {
		limit = MaxPendingOrders
	}
	rows, err := g.pool.Query(ctx, `
		SELECT id::text, position_id::text, order_type, direction,
		       quantity::text, COALESCE(leverage, 1)::text,
		       price::text, stop_price::text, status
		FROM orders
		WHERE position_id IS NOT NULL AND status = 'pending'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list pending sl/tp orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		var qty, lev string
		var price, stopPrice *string
		err := rows.Scan(&o.ID, &o.PositionID, &o.Type, &o.Direction,
			&qty, &lev, &price, &stopPrice, &o.Status)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan order: %w", err)
		}
		if o.Quantity, err = money.Parse(qty); err != nil {
			return nil, fmt.Errorf("ledger: order %s: %w", o.ID, err)
		}
		if o.Leverage, err = money.Parse(lev); err != nil {
			return nil, fmt.Errorf("ledger: order %s: %w", o.ID, err)
		}
		if o.Price, err = parseOptional(price); err != nil {
			return nil, fmt.Errorf("ledger: order %s: %w", o.ID, err)
		}
		if o.StopPrice, err = parseOptional(stopPrice); err != nil {
			return nil, fmt.Errorf("ledger: order %s: %w", o.ID, err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func parseOptional(raw *string) (*money.Amount, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := money.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

const accountColumns = `
	id::text, user_id::text, starting_balance::text,
	available_margin::text, total_margin_required::text,
	net_worth::text, realized_pnl::text, COALESCE(total_pnl, 0)::text,
	account_status, COALESCE(breach_reason, ''),
	COALESCE(day_start_balance, 0)::text,
	COALESCE(day_start_equity, 0)::text,
	COALESCE(day_start_date::text, ''),
	COALESCE(current_phase, '')`

// ListAccounts fetches the accounts with the given ids.
func (g *Gateway) ListAccounts(ctx context.Context, ids []string) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := g.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: list accounts: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListActiveAccountsWithStaleDayStart returns accounts that are still
// tradable and whose daily-drawdown anchor has not been snapshotted
// for todayUTC. The day_start_date guard makes the daily reset
// idempotent across restarts and concurrent runs.
func (g *Gateway) ListActiveAccountsWithStaleDayStart(ctx context.Context, todayUTC string, limit int) ([]Account, error) {
	if limit <= 0 || limit > MaxDayStartBatch {
		limit = MaxDayStartBatch
	}
	rows, err := g.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_status NOT IN ('breached', 'closed')
		  AND (day_start_date IS NULL OR day_start_date <> $1::date)
		LIMIT $2`, todayUTC, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list stale day-start accounts: %w", err)
	}
	defer rows.Close()
	return collectAccounts(rows)
}

type pgxRows interface {
	rowScanner
	Next() bool
	Err() error
}

func collectAccounts(rows pgxRows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		var a Account
		var sb, am, tmr, nw, rp, tp, dsb, dse string
		err := rows.Scan(&a.ID, &a.UserID, &sb, &am, &tmr, &nw, &rp, &tp,
			&a.Status, &a.BreachReason, &dsb, &dse, &a.DayStartDate, &a.CurrentPhase)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan account: %w", err)
		}
		fields := []struct {
			raw string
			dst *money.Amount
		}{
			{sb, &a.StartingBalance}, {am, &a.AvailableMargin},
			{tmr, &a.TotalMarginRequired}, {nw, &a.NetWorth},
			{rp, &a.RealizedPnL}, {tp, &a.TotalPnL},
			{dsb, &a.DayStartBalance}, {dse, &a.DayStartEquity},
		}
		for _, f := range fields {
			v, err := money.Parse(f.raw)
			if err != nil {
				return nil, fmt.Errorf("ledger: account %s: %w", a.ID, err)
			}
			*f.dst = v
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SnapshotDayStart writes the daily-drawdown anchor for accountID.
// The WHERE guard keeps the write idempotent: once a row carries
// todayUTC the snapshot is never overwritten for that day.
func (g *Gateway) SnapshotDayStart(ctx context.Context, accountID string, equity money.Amount, todayUTC string) error {
	_, err := g.pool.Exec(ctx, `
		UPDATE accounts
		SET day_start_balance = $2::numeric,
		    day_start_equity = $2::numeric,
		    day_start_date = $3::date,
		    updated_at = now()
		WHERE id = $1::uuid
		  AND (day_start_date IS NULL OR day_start_date <> $3::date)`,
		accountID, equity.String(), todayUTC)
	if err != nil {
		return fmt.Errorf("ledger: snapshot day start for %s: %w", accountID, err)
	}
	return nil
}

// ClosePositionParams carries everything close_position_atomic needs
// to settle one position in a single transaction.
type ClosePositionParams struct {
	PositionID       string
	AccountID        string
	ExitPrice        money.Amount
	ExitTimestamp    time.Time
	RealizedPnL      money.Amount
	CloseFee         money.Amount
	ExistingFees     money.Amount
	IsolatedMargin   money.Amount
	CloseReason      CloseReason
	TriggeredOrderID string // optional: the SL/TP order that fired
	Symbol           string
	Direction        Direction
	Quantity         money.Amount
}

// ClosePositionAtomic settles a position via the stored procedure.
// Returns ErrNotOpen when the position was already closed by another
// path; callers treat that as benign.
func (g *Gateway) ClosePositionAtomic(ctx context.Context, p ClosePositionParams) error {
	var triggeredOrderID any
	if p.TriggeredOrderID != "" {
		triggeredOrderID = p.TriggeredOrderID
	}
	_, err := g.pool.Exec(ctx, `
		SELECT close_position_atomic(
			$1::uuid, $2::uuid, $3::numeric, $4, $5::numeric, $6::numeric,
			$7::numeric, $8::numeric, $9, $10::uuid, $11, $12, $13::numeric)`,
		p.PositionID, p.AccountID, p.ExitPrice.String(), p.ExitTimestamp,
		p.RealizedPnL.String(), p.CloseFee.String(), p.ExistingFees.String(),
		p.IsolatedMargin.String(), string(p.CloseReason), triggeredOrderID,
		p.Symbol, string(p.Direction), p.Quantity.String())
	if err != nil {
		return mapProcError(err)
	}
	return nil
}

// BreachAccountAtomic marks the account breached with reason and
// appends the audit activity row, atomically.
func (g *Gateway) BreachAccountAtomic(ctx context.Context, accountID, reason string) error {
	_, err := g.pool.Exec(ctx,
		`SELECT breach_account_atomic($1::uuid, $2)`, accountID, reason)
	if err != nil {
		return mapProcError(err)
	}
	return nil
}

// PlaceMarketOrderParams mirrors the place_market_order procedure
// signature. The engine itself never places orders; this is exposed
// for the order-entry path, which must establish the invariants the
// engine assumes (margin deducted, SL/TP orders linked and inverted).
type PlaceMarketOrderParams struct {
	AccountID        string
	UserID           string
	Symbol           string
	Direction        Direction
	MarginMode       string
	Quantity         money.Amount
	Leverage         money.Amount
	ExecPrice        money.Amount
	Margin           money.Amount
	Fee              money.Amount
	LiquidationPrice money.Amount
	InstrumentConfig json.RawMessage
	InstrumentPrice  money.Amount
	SLPrice          *money.Amount
	TPPrice          *money.Amount
}

// PlaceMarketOrder opens a position via the stored procedure and
// returns the inserted row.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, p PlaceMarketOrderParams) (Position, error) {
	var slPrice, tpPrice any
	if p.SLPrice != nil {
		slPrice = p.SLPrice.String()
	}
	if p.TPPrice != nil {
		tpPrice = p.TPPrice.String()
	}
	instrumentConfig := p.InstrumentConfig
	if instrumentConfig == nil {
		instrumentConfig = json.RawMessage(`{}`)
	}
	var payload []byte
	err := g.pool.QueryRow(ctx, `
		SELECT place_market_order(
			$1::uuid, $2::uuid, $3, $4, $5, $6::numeric, $7::numeric,
			$8::numeric, $9::numeric, $10::numeric, $11::numeric,
			$12::jsonb, $13::numeric, $14::numeric, $15::numeric)`,
		p.AccountID, p.UserID, p.Symbol, string(p.Direction), p.MarginMode,
		p.Quantity.String(), p.Leverage.String(), p.ExecPrice.String(),
		p.Margin.String(), p.Fee.String(), p.LiquidationPrice.String(),
		instrumentConfig, p.InstrumentPrice.String(), slPrice, tpPrice,
	).Scan(&payload)
	if err != nil {
		return Position{}, mapProcError(err)
	}
	return positionFromJSON(payload)
}

// positionJSON is the wire shape place_market_order returns: every
// numeric rendered as text so nothing round-trips through float64.
type positionJSON struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	Symbol           string `json:"symbol"`
	Direction        string `json:"direction"`
	Quantity         string `json:"quantity"`
	Leverage         string `json:"leverage"`
	EntryPrice       string `json:"entry_price"`
	LiquidationPrice string `json:"liquidation_price"`
	IsolatedMargin   string `json:"isolated_margin"`
	TradeFees        string `json:"trade_fees"`
	Status           string `json:"status"`
}

func positionFromJSON(payload []byte) (Position, error) {
	var pj positionJSON
	if err := json.Unmarshal(payload, &pj); err != nil {
		return Position{}, fmt.Errorf("ledger: decode position payload: %w", err)
	}
	p := Position{
		ID:        pj.ID,
		AccountID: pj.AccountID,
		Symbol:    pj.Symbol,
		Direction: Direction(pj.Direction),
		Status:    PositionStatus(pj.Status),
	}
	fields := []struct {
		raw string
		dst *money.Amount
	}{
		{pj.Quantity, &p.Quantity}, {pj.Leverage, &p.Leverage},
		{pj.EntryPrice, &p.EntryPrice}, {pj.LiquidationPrice, &p.LiquidationPrice},
		{pj.IsolatedMargin, &p.IsolatedMargin}, {pj.TradeFees, &p.TradeFees},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := money.Parse(f.raw)
		if err != nil {
			return Position{}, fmt.Errorf("ledger: decode position payload: %w", err)
		}
		*f.dst = v
	}
	return p, nil
}
