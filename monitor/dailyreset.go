package monitor

import (
	"context"
	"time"

	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
)

// resetInterval throttles how often the scheduler asks the ledger for
// accounts with a stale day-start anchor.
const resetInterval = 60 * time.Second

// ResetLedger is the ledger surface the daily-reset scheduler needs.
type ResetLedger interface {
	ListActiveAccountsWithStaleDayStart(ctx context.Context, todayUTC string, limit int) ([]ledger.Account, error)
	SnapshotDayStart(ctx context.Context, accountID string, equity money.Amount, todayUTC string) error
}

// DailyReset snapshots the equity anchor the daily drawdown measures
// against, once per UTC calendar day per active account. There is no
// external cron: the monitor loop calls MaybeRun every tick and the
// scheduler rate-limits itself. Idempotence comes from the ledger
// side, where the snapshot write is guarded on day_start_date.
type DailyReset struct {
	ledger  ResetLedger
	log     *logging.Logger
	lastRun time.Time
}

// NewDailyReset constructs the scheduler.
func NewDailyReset(l ResetLedger, log *logging.Logger) *DailyReset {
	return &DailyReset{ledger: l, log: log}
}

// MaybeRun performs a reset pass when at least 60s have elapsed since
// the previous pass. Called from the monitor loop only; not
// goroutine-safe on its own.
func (r *DailyReset) MaybeRun(ctx context.Context, now time.Time) {
	if !r.lastRun.IsZero() && now.Sub(r.lastRun) < resetInterval {
		return
	}
	r.lastRun = now

	today := ledger.TradingDay(now)
	accounts, err := r.ledger.ListActiveAccountsWithStaleDayStart(ctx, today, ledger.MaxDayStartBatch)
	if err != nil {
		r.log.Error("list stale day-start accounts failed", err,
			logging.Component("dailyreset"))
		return
	}

	for _, a := range accounts {
		// Net worth is the conservative anchor: unrealized PnL
		// at the reset instant is excluded, and the daily floor
		// tolerates either convention by taking the max of the
		// snapshotted balance and equity.
		anchor := a.NetWorth
		if err := r.ledger.SnapshotDayStart(ctx, a.ID, anchor, today); err != nil {
			r.log.Error("day-start snapshot failed", err,
				logging.Component("dailyreset"),
				logging.AccountID(a.ID))
			continue
		}
		r.log.Info("day-start anchor snapshotted",
			logging.Component("dailyreset"),
			logging.AccountID(a.ID),
			logging.String("anchor", anchor.String()),
			logging.String("day", today))
	}
}
