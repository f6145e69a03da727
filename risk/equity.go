package risk

import (
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/money"
)

// Equity marks account a to market: net worth plus the unrealized PnL
// of every open position that has a fresh tick. Positions whose price
// is missing or stale contribute nothing; when the feed is down long
// enough that everything is stale, equity degrades to net worth and
// the guards prefer inaction over a close driven by dead prices.
func Equity(a ledger.Account, positions []ledger.Position, priceCache *cache.PriceCache, now time.Time) money.Amount {
	equity := a.NetWorth
	for _, p := range positions {
		tick, ok := priceCache.Get(p.Symbol)
		if !ok || !cache.IsFresh(tick, now) {
			continue
		}
		equity = money.Add(equity, PnL(p, ExitPrice(p, tick)))
	}
	return equity
}
