package risk

import (
	"context"
	"strings"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
	"github.com/propfirm/riskengine/monitoring"
)

// Margin-level thresholds, in percent of margin used.
var (
	marginCallLevel = money.MustParse("100")
	stopOutLevel    = money.MustParse("50")
)

// MarginGuard enforces the margin-level contract per account: a
// margin call notification at 100%, a forced liquidation of the worst
// position at 50%.
type MarginGuard struct {
	cache  *cache.PriceCache
	closer *Closer
	log    *logging.Logger
}

// NewMarginGuard constructs the guard.
func NewMarginGuard(priceCache *cache.PriceCache, closer *Closer, log *logging.Logger) *MarginGuard {
	return &MarginGuard{cache: priceCache, closer: closer, log: log}
}

// Evaluate checks account a against its open positions and reports
// whether a stop-out close was issued. After a stop-out the caller
// must skip the drawdown guard for this account until the next tick,
// when the ledger reflects the liquidation.
func (g *MarginGuard) Evaluate(ctx context.Context, a ledger.Account, positions []ledger.Position, now time.Time) bool {
	marginUsed := a.TotalMarginRequired
	if money.IsZero(marginUsed) {
		return false
	}

	equity := Equity(a, positions, g.cache, now)
	levelPct := money.Mul(money.Hundred, money.SafeDiv(equity, marginUsed))

	if money.LTE(levelPct, stopOutLevel) {
		return g.stopOut(ctx, a, positions, levelPct, now)
	}

	if money.LTE(levelPct, marginCallLevel) {
		monitoring.RecordMarginCall()
		g.log.Warn("margin call",
			logging.Component("margin"),
			logging.AccountID(a.ID),
			logging.String("margin_level_pct", levelPct.String()),
			logging.String("equity", equity.String()))
	}
	return false
}

// stopOut liquidates the single worst open position of the account.
func (g *MarginGuard) stopOut(ctx context.Context, a ledger.Account, positions []ledger.Position, levelPct money.Amount, now time.Time) bool {
	worst, exitPrice, ok := worstPosition(positions, g.cache, now)
	if !ok {
		// Every price is stale; never liquidate off dead prices.
		return false
	}

	g.log.Warn("stop out",
		logging.Component("margin"),
		logging.AccountID(a.ID),
		logging.PositionID(worst.ID),
		logging.String("margin_level_pct", levelPct.String()))

	if err := g.closer.Close(ctx, worst, exitPrice, ledger.CloseLiquidation, ""); err != nil {
		g.log.Error("stop-out close failed", err,
			logging.Component("margin"),
			logging.AccountID(a.ID),
			logging.PositionID(worst.ID))
		// Re-evaluated next tick; the account stays in stop-out
		// territory until a close lands.
		return true
	}
	monitoring.RecordStopOut()
	return true
}

// worstPosition picks the position with the most negative unrealized
// PnL among those with a fresh tick. Ties break to the highest
// isolated margin, then the lowest id lexicographically, so repeated
// evaluation of the same snapshot is deterministic.
func worstPosition(positions []ledger.Position, priceCache *cache.PriceCache, now time.Time) (ledger.Position, money.Amount, bool) {
	var (
		worst     ledger.Position
		worstPnL  money.Amount
		worstExit money.Amount
		found     bool
	)
	for _, p := range positions {
		tick, ok := priceCache.Get(p.Symbol)
		if !ok || !cache.IsFresh(tick, now) {
			continue
		}
		exit := ExitPrice(p, tick)
		pnl := PnL(p, exit)
		if !found || worseThan(p, pnl, worst, worstPnL) {
			worst, worstPnL, worstExit, found = p, pnl, exit, true
		}
	}
	return worst, worstExit, found
}

func worseThan(p ledger.Position, pnl money.Amount, than ledger.Position, thanPnL money.Amount) bool {
	if c := money.Cmp(pnl, thanPnL); c != 0 {
		return c < 0
	}
	if c := money.Cmp(p.IsolatedMargin, than.IsolatedMargin); c != 0 {
		return c > 0
	}
	return strings.Compare(p.ID, than.ID) < 0
}
