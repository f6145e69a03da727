// Package risk holds the per-tick evaluators: SL/TP matching, the
// margin-level guard and the drawdown guard, plus the position closer
// they all funnel through. Evaluators read position and account
// snapshots fetched at the top of the tick and the live price cache;
// every mutation they issue is a single atomic ledger RPC.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
	"github.com/propfirm/riskengine/monitoring"
)

// takerFeeRate is the 0.07% taker fee charged on the exit notional.
var takerFeeRate = money.MustParse("0.0007")

// CloseLedger is the slice of the ledger gateway the closer needs.
type CloseLedger interface {
	ClosePositionAtomic(ctx context.Context, p ledger.ClosePositionParams) error
}

// Closer composes the exit price, realized PnL and close fee for a
// position snapshot and hands them to close_position_atomic. It is
// safe to invoke twice on the same position: the procedure rejects
// non-open positions and the closer swallows that as a benign race.
type Closer struct {
	ledger CloseLedger
	log    *logging.Logger
	now    func() time.Time
}

// NewCloser constructs a closer backed by l.
func NewCloser(l CloseLedger, log *logging.Logger) *Closer {
	return &Closer{ledger: l, log: log, now: time.Now}
}

// Close settles position p at exitPrice with the given reason.
// triggeredOrderID names the SL/TP order that fired, or is empty.
func (c *Closer) Close(ctx context.Context, p ledger.Position, exitPrice money.Amount, reason ledger.CloseReason, triggeredOrderID string) error {
	pnl := PnL(p, exitPrice)
	fee := closeFee(exitPrice, p.Quantity)

	err := c.ledger.ClosePositionAtomic(ctx, ledger.ClosePositionParams{
		PositionID:       p.ID,
		AccountID:        p.AccountID,
		ExitPrice:        exitPrice,
		ExitTimestamp:    c.now(),
		RealizedPnL:      pnl,
		CloseFee:         fee,
		ExistingFees:     p.TradeFees,
		IsolatedMargin:   p.IsolatedMargin,
		CloseReason:      reason,
		TriggeredOrderID: triggeredOrderID,
		Symbol:           p.Symbol,
		Direction:        p.Direction,
		Quantity:         p.Quantity,
	})
	if errors.Is(err, ledger.ErrNotOpen) {
		c.log.Info("position already closed",
			logging.Component("closer"),
			logging.PositionID(p.ID),
			logging.AccountID(p.AccountID))
		return nil
	}
	if err != nil {
		return err
	}

	monitoring.RecordPositionClosed(string(reason))
	c.log.Info("position closed",
		logging.Component("closer"),
		logging.PositionID(p.ID),
		logging.AccountID(p.AccountID),
		logging.Symbol(p.Symbol),
		logging.String("reason", string(reason)),
		logging.String("exit_price", exitPrice.String()),
		logging.String("realized_pnl", pnl.String()))
	return nil
}

// PnL returns the direction-signed realized PnL of closing p at exit:
// (exit - entry) x quantity x leverage for longs, negated for shorts.
func PnL(p ledger.Position, exit money.Amount) money.Amount {
	var diff money.Amount
	if p.Direction == ledger.Long {
		diff = money.Sub(exit, p.EntryPrice)
	} else {
		diff = money.Sub(p.EntryPrice, exit)
	}
	return money.Mul(money.Mul(diff, p.Quantity), p.Leverage)
}

func closeFee(exit, quantity money.Amount) money.Amount {
	return money.Mul(money.Mul(exit, quantity), takerFeeRate)
}

// ExitPrice is the side of the book a position closes against: a long
// sells into the bid, a short buys back at the ask.
func ExitPrice(p ledger.Position, tick cache.Tick) money.Amount {
	if p.Direction == ledger.Long {
		return tick.Bid
	}
	return tick.Ask
}
