// Package ledger is the engine's port to the relational store that
// owns all persistent state: accounts, positions, orders, activity and
// equity history. Reads are plain queries; position, order and breach
// mutations go through the atomic stored procedures so that no partial
// state is ever observable by other readers. The day-start snapshot is
// the one write outside them: a single guarded UPDATE statement.
package ledger

import (
	"time"

	"github.com/propfirm/riskengine/money"
)

// Direction of a position or order.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the inverse direction. SL/TP orders carry the
// opposite direction from their parent position.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// AccountStatus is the lifecycle state of a trading account. breached
// is terminal for the engine: no further mutations are issued.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountFunded   AccountStatus = "funded"
	AccountPassed   AccountStatus = "passed"
	AccountBreached AccountStatus = "breached"
	AccountClosed   AccountStatus = "closed"
)

// PositionStatus of a position row.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason recorded on a closed position.
type CloseReason string

const (
	CloseManual      CloseReason = "manual"
	CloseStopLoss    CloseReason = "sl"
	CloseTakeProfit  CloseReason = "tp"
	CloseLiquidation CloseReason = "liquidation"
	CloseAdminForce  CloseReason = "admin_force"
)

// OrderType of an order row.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// OrderStatus of an order row.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// Account is a snapshot of an accounts row. NetWorth is the realized
// balance and excludes unrealized PnL of open positions; equity is
// derived per tick by the risk evaluators.
type Account struct {
	ID                  string
	UserID              string
	StartingBalance     money.Amount
	AvailableMargin     money.Amount
	TotalMarginRequired money.Amount
	NetWorth            money.Amount
	RealizedPnL         money.Amount
	TotalPnL            money.Amount
	Status              AccountStatus
	BreachReason        string
	DayStartBalance     money.Amount
	DayStartEquity      money.Amount
	DayStartDate        string // YYYY-MM-DD (UTC), empty when never snapshotted
	CurrentPhase        string
}

// Position is a snapshot of a positions row. The engine never mutates
// it in memory; closes go through the close_position_atomic procedure.
type Position struct {
	ID               string
	AccountID        string
	Symbol           string
	Direction        Direction
	Quantity         money.Amount
	Leverage         money.Amount
	EntryPrice       money.Amount
	LiquidationPrice money.Amount
	IsolatedMargin   money.Amount
	TradeFees        money.Amount
	Status           PositionStatus
	CloseReason      CloseReason
	ExitPrice        money.Amount
	ExitTimestamp    time.Time
	RealizedPnL      money.Amount
}

// Order is a snapshot of an orders row. Price and StopPrice are nil
// when the corresponding column is NULL.
type Order struct {
	ID         string
	PositionID string // empty when the order is not linked to a position
	Type       OrderType
	Direction  Direction
	Quantity   money.Amount
	Leverage   money.Amount
	Price      *money.Amount
	StopPrice  *money.Amount
	Status     OrderStatus
}

// TradingDay formats t as the UTC calendar day used for the daily
// drawdown anchor. The daily cutoff is strictly UTC midnight.
func TradingDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
