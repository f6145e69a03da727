package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
)

// FallbackLoader pulls quotes from the ledger's price_cache table for
// symbols the streaming feed does not carry (forex, metals) and
// upserts them into the in-memory price cache. The row's last_updated
// is used as the tick timestamp, so a symbol that stops being fed
// upstream goes stale here too and the evaluators leave it alone.
type FallbackLoader struct {
	gateway *Gateway
	cache   *cache.PriceCache
	symbols []string
	log     *logging.Logger
}

// NewFallbackLoader constructs a loader for the given symbol list.
func NewFallbackLoader(gateway *Gateway, priceCache *cache.PriceCache, symbols []string, log *logging.Logger) *FallbackLoader {
	return &FallbackLoader{
		gateway: gateway,
		cache:   priceCache,
		symbols: symbols,
		log:     log,
	}
}

// Refresh reads the current rows for the loader's symbols and writes
// them into the price cache. Read-only against the ledger.
func (l *FallbackLoader) Refresh(ctx context.Context) error {
	if len(l.symbols) == 0 {
		return nil
	}
	rows, err := l.gateway.pool.Query(ctx, `
		SELECT symbol,
		       current_price::text,
		       COALESCE(current_bid, current_price)::text,
		       COALESCE(current_ask, current_price)::text,
		       last_updated
		FROM price_cache
		WHERE symbol = ANY($1)`, l.symbols)
	if err != nil {
		return fmt.Errorf("ledger: fallback prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol, last, bid, ask string
		var updated time.Time
		if err := rows.Scan(&symbol, &last, &bid, &ask, &updated); err != nil {
			return fmt.Errorf("ledger: scan fallback price: %w", err)
		}
		bidAmt, err := money.Parse(bid)
		if err != nil {
			l.log.Warn("fallback price unparseable", logging.Symbol(symbol), logging.String("bid", bid))
			continue
		}
		askAmt, err := money.Parse(ask)
		if err != nil {
			l.log.Warn("fallback price unparseable", logging.Symbol(symbol), logging.String("ask", ask))
			continue
		}
		lastAmt, err := money.Parse(last)
		if err != nil {
			l.log.Warn("fallback price unparseable", logging.Symbol(symbol), logging.String("last", last))
			continue
		}
		l.cache.Set(symbol, bidAmt, askAmt, lastAmt, updated)
	}
	return rows.Err()
}

// DefaultFallbackSymbols is the fixed list of non-streaming symbols
// the platform quotes through the price_cache table.
func DefaultFallbackSymbols() []string {
	return []string{
		"EUR-USD",
		"GBP-USD",
		"USD-JPY",
		"AUD-USD",
		"USD-CAD",
		"XAU-USD",
		"XAG-USD",
	}
}
