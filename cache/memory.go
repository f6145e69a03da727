// Package cache holds the engine's in-memory price cache: a concurrent
// symbol -> latest tick map with no history and no persistence. One
// writer per symbol (the exchange feed client for streaming symbols,
// the fallback price loader for everything else), many concurrent
// readers (the monitor loop's tick evaluators).
package cache

import (
	"sync"
	"time"

	"github.com/propfirm/riskengine/money"
)

// StaleAfter is how long a tick may go without an update before
// IsFresh reports it stale. Overridden once at startup from
// PRICE_STALE_MS, before any reader goroutine exists.
var StaleAfter = 30 * time.Second

// Tick is the latest known price for a symbol.
type Tick struct {
	Symbol    string
	Bid       money.Amount
	Ask       money.Amount
	Last      money.Amount
	Timestamp time.Time
}

// Mid returns the midpoint of bid and ask.
func (t Tick) Mid() money.Amount {
	return money.SafeDiv(money.Add(t.Bid, t.Ask), two)
}

var two = money.MustParse("2")

// PriceCache is a concurrent, in-memory symbol -> Tick map. Values are
// last-writer-wins: whichever of the feed client or the fallback
// loader wrote most recently for a given symbol is authoritative.
type PriceCache struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

// NewPriceCache constructs an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		ticks: make(map[string]Tick),
	}
}

// Set records a new tick for symbol, overwriting any previous value.
// A negative or crossed quote (bid > ask) is dropped: every evaluator
// trusts bid <= ask >= 0, so the invariant is enforced here, once,
// for both writers.
func (c *PriceCache) Set(symbol string, bid, ask, last money.Amount, ts time.Time) {
	if money.IsNeg(bid) || money.IsNeg(ask) || money.GT(bid, ask) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[symbol] = Tick{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Timestamp: ts,
	}
}

// Get returns the latest tick for symbol, if any.
func (c *PriceCache) Get(symbol string) (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	return t, ok
}

// Len reports the number of symbols currently held, for metrics.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ticks)
}

// Symbols returns a snapshot of all symbols currently cached.
func (c *PriceCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols := make([]string, 0, len(c.ticks))
	for s := range c.ticks {
		symbols = append(symbols, s)
	}
	return symbols
}

// FreshCount reports how many cached symbols have a fresh tick as of
// now, for metrics and the health endpoint.
func (c *PriceCache) FreshCount(now time.Time) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, t := range c.ticks {
		if IsFresh(t, now) {
			n++
		}
	}
	return n
}

// IsFresh reports whether tick was written within StaleAfter of now.
func IsFresh(tick Tick, now time.Time) bool {
	return now.Sub(tick.Timestamp) <= StaleAfter
}
