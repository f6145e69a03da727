package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
	"github.com/propfirm/riskengine/monitoring"
)

var (
	// absoluteDrawdownLimit terminates an account 10% below its
	// starting balance.
	absoluteDrawdownLimit = money.MustParse("0.10")

	// dailyFloorFactor puts the daily floor 5% below the UTC
	// day-start anchor.
	dailyFloorFactor = money.MustParse("0.95")
)

// BreachLedger is the slice of the ledger gateway the drawdown guard
// needs beyond the closer.
type BreachLedger interface {
	BreachAccountAtomic(ctx context.Context, accountID, reason string) error
}

// DrawdownGuard enforces the absolute (10% from starting balance) and
// daily (5% from the UTC day-start anchor) drawdown limits. On breach
// it closes every open position with a fresh price and transitions
// the account to the terminal breached state.
type DrawdownGuard struct {
	cache  *cache.PriceCache
	closer *Closer
	ledger BreachLedger
	log    *logging.Logger
}

// NewDrawdownGuard constructs the guard.
func NewDrawdownGuard(priceCache *cache.PriceCache, closer *Closer, l BreachLedger, log *logging.Logger) *DrawdownGuard {
	return &DrawdownGuard{cache: priceCache, closer: closer, ledger: l, log: log}
}

// Evaluate checks account a and reports whether it was breached.
// When both limits are crossed in the same tick the absolute limit is
// reported, since its threshold is the broader one.
func (g *DrawdownGuard) Evaluate(ctx context.Context, a ledger.Account, positions []ledger.Position, now time.Time) bool {
	equity := Equity(a, positions, g.cache, now)

	if reason, kind := g.breachReason(a, equity, now); reason != "" {
		g.breach(ctx, a, positions, equity, reason, kind, now)
		return true
	}
	return false
}

func (g *DrawdownGuard) breachReason(a ledger.Account, equity money.Amount, now time.Time) (string, string) {
	// Absolute drawdown: (S - E) / S >= 10%. A zero starting
	// balance yields a zero ratio and never breaches.
	loss := money.Sub(a.StartingBalance, equity)
	ratio := money.SafeDiv(loss, a.StartingBalance)
	if money.GTE(ratio, absoluteDrawdownLimit) {
		return fmt.Sprintf("Max drawdown reached: equity %s fell 10%% below starting balance %s",
			equity, a.StartingBalance), "absolute"
	}

	// Daily drawdown only applies once today's anchor is in place.
	if a.DayStartDate != ledger.TradingDay(now) {
		return "", ""
	}
	anchor := money.Max(a.DayStartBalance, a.DayStartEquity)
	if !money.GT(anchor, money.Zero) {
		return "", ""
	}
	floor := money.Mul(anchor, dailyFloorFactor)
	if money.LTE(equity, floor) {
		return fmt.Sprintf("Daily drawdown reached: equity %s fell below daily floor %s (5%% under day start %s)",
			equity, floor, anchor), "daily"
	}
	return "", ""
}

// breach closes every open position that has a fresh price, then
// marks the account breached. A position with a stale price is not
// closed here and the account transition is not blocked on it; once
// the account is breached the monitor loop skips it, so the engine
// does not revisit that position.
func (g *DrawdownGuard) breach(ctx context.Context, a ledger.Account, positions []ledger.Position, equity money.Amount, reason, kind string, now time.Time) {
	g.log.Warn("drawdown breach",
		logging.Component("drawdown"),
		logging.AccountID(a.ID),
		logging.String("kind", kind),
		logging.String("equity", equity.String()),
		logging.String("reason", reason))

	for _, p := range positions {
		tick, ok := g.cache.Get(p.Symbol)
		if !ok || !cache.IsFresh(tick, now) {
			continue
		}
		if err := g.closer.Close(ctx, p, ExitPrice(p, tick), ledger.CloseLiquidation, ""); err != nil {
			g.log.Error("breach close failed", err,
				logging.Component("drawdown"),
				logging.AccountID(a.ID),
				logging.PositionID(p.ID))
		}
	}

	if err := g.ledger.BreachAccountAtomic(ctx, a.ID, reason); err != nil {
		g.log.Error("breach account failed", err,
			logging.Component("drawdown"),
			logging.AccountID(a.ID))
		return
	}
	monitoring.RecordBreach(kind)
}
