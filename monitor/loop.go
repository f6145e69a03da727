// Package monitor orchestrates the engine: the once-per-second tick
// that runs SL/TP matching, the margin-level guard and the drawdown
// guard over every open position, the daily-reset scheduler, and the
// liveness endpoint.
package monitor

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/monitoring"
	"github.com/propfirm/riskengine/risk"
)

// Ledger is the read surface the loop needs each tick.
type Ledger interface {
	ListOpenPositions(ctx context.Context, limit int) ([]ledger.Position, error)
	ListPendingSLTPOrders(ctx context.Context, limit int) ([]ledger.Order, error)
	ListAccounts(ctx context.Context, ids []string) ([]ledger.Account, error)
}

// Refresher is the fallback price loader the loop runs at the top of
// each tick.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Loop drives one evaluation pass per tick. Ticks never overlap: a
// tick that runs past its period is followed immediately by the next
// one, with no queueing.
type Loop struct {
	ledger   Ledger
	fallback Refresher
	matcher  *risk.Matcher
	margin   *risk.MarginGuard
	drawdown *risk.DrawdownGuard
	reset    *DailyReset
	cache    *cache.PriceCache
	interval time.Duration
	log      *logging.Logger
	tickSeq  int64
	now      func() time.Time
}

// NewLoop wires the loop. interval is the target tick period.
func NewLoop(l Ledger, fallback Refresher, matcher *risk.Matcher, margin *risk.MarginGuard, drawdown *risk.DrawdownGuard, reset *DailyReset, priceCache *cache.PriceCache, interval time.Duration, log *logging.Logger) *Loop {
	return &Loop{
		ledger:   l,
		fallback: fallback,
		matcher:  matcher,
		margin:   margin,
		drawdown: drawdown,
		reset:    reset,
		cache:    priceCache,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("monitor loop started",
		logging.Component("loop"),
		logging.String("interval", l.interval.String()))
	for {
		start := l.now()
		l.Tick(ctx)
		elapsed := l.now().Sub(start)
		monitoring.ObserveTick(elapsed)

		remaining := l.interval - elapsed
		if remaining <= 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(remaining):
		}
	}
}

// Tick runs one evaluation pass. Every ledger failure is logged and
// ends the affected phase; the next tick re-reads everything, so a
// transient error costs at most one period of enforcement latency.
func (l *Loop) Tick(ctx context.Context) {
	l.tickSeq++
	tick := l.tickSeq
	tickTrace := uuid.NewString()
	now := l.now()

	l.reset.MaybeRun(ctx, now)

	if err := l.fallback.Refresh(ctx); err != nil {
		monitoring.RecordLedgerError("fallback_prices")
		l.log.Warn("fallback price refresh failed",
			logging.Component("loop"), logging.TickID(tick),
			logging.String("error", err.Error()))
	}

	monitoring.SetPriceCacheStats(l.cache.Len(), l.cache.FreshCount(now))

	positions, err := l.ledger.ListOpenPositions(ctx, ledger.MaxOpenPositions)
	if err != nil {
		monitoring.RecordLedgerError("list_positions")
		l.log.Error("list open positions failed", err,
			logging.Component("loop"), logging.TickID(tick),
			logging.RequestID(tickTrace))
		return
	}
	if len(positions) == 0 {
		return
	}

	orders, err := l.ledger.ListPendingSLTPOrders(ctx, ledger.MaxPendingOrders)
	if err != nil {
		monitoring.RecordLedgerError("list_orders")
		l.log.Error("list pending orders failed", err,
			logging.Component("loop"), logging.TickID(tick),
			logging.RequestID(tickTrace))
		orders = nil
	}

	if closed := l.matcher.Run(ctx, positions, orders, now); closed > 0 {
		l.log.Info("sl/tp pass closed positions",
			logging.Component("loop"), logging.TickID(tick),
			logging.RequestID(tickTrace), logging.Int("closed", closed))
		// Re-read so the margin and drawdown phases see the
		// post-close ledger state.
		positions, err = l.ledger.ListOpenPositions(ctx, ledger.MaxOpenPositions)
		if err != nil {
			monitoring.RecordLedgerError("list_positions")
			l.log.Error("re-list open positions failed", err,
				logging.Component("loop"), logging.TickID(tick),
				logging.RequestID(tickTrace))
			return
		}
		if len(positions) == 0 {
			return
		}
	}

	byAccount := groupByAccount(positions)
	ids := make([]string, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	accounts, err := l.ledger.ListAccounts(ctx, ids)
	if err != nil {
		monitoring.RecordLedgerError("list_accounts")
		l.log.Error("list accounts failed", err,
			logging.Component("loop"), logging.TickID(tick),
			logging.RequestID(tickTrace))
		return
	}

	for _, a := range accounts {
		if a.Status == ledger.AccountBreached {
			continue
		}
		posA := byAccount[a.ID]
		if l.margin.Evaluate(ctx, a, posA, now) {
			// Stop-out issued: drawdown re-checks next tick,
			// once the ledger reflects the liquidation.
			continue
		}
		l.drawdown.Evaluate(ctx, a, posA, now)
	}
}

func groupByAccount(positions []ledger.Position) map[string][]ledger.Position {
	grouped := make(map[string][]ledger.Position)
	for _, p := range positions {
		grouped[p.AccountID] = append(grouped[p.AccountID], p)
	}
	return grouped
}
