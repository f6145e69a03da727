package risk

import (
	"context"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
)

// Matcher evaluates the pending SL/TP orders of a tick against the
// current bid/ask and closes the parent position when a trigger price
// is crossed.
type Matcher struct {
	cache  *cache.PriceCache
	closer *Closer
	log    *logging.Logger
}

// NewMatcher constructs a matcher reading prices from priceCache and
// closing through closer.
func NewMatcher(priceCache *cache.PriceCache, closer *Closer, log *logging.Logger) *Matcher {
	return &Matcher{cache: priceCache, closer: closer, log: log}
}

// Run evaluates orders against positions, both fetched at the top of
// the same tick, and returns how many positions were closed. Stop
// orders are evaluated before limit orders so that when a price gap
// puts both an SL and a TP in the money, the stop-loss wins. Within
// each pass, orders keep the ledger's return order; the atomic close
// rejects any second close of the same position.
func (m *Matcher) Run(ctx context.Context, positions []ledger.Position, orders []ledger.Order, now time.Time) int {
	posByID := make(map[string]ledger.Position, len(positions))
	for _, p := range positions {
		posByID[p.ID] = p
	}

	closed := make(map[string]bool)
	count := 0
	for _, pass := range []ledger.OrderType{ledger.OrderStop, ledger.OrderLimit} {
		for _, o := range orders {
			if o.Type != pass || closed[o.PositionID] {
				continue
			}
			p, ok := posByID[o.PositionID]
			if !ok {
				continue
			}
			tick, ok := m.cache.Get(p.Symbol)
			if !ok || !cache.IsFresh(tick, now) {
				continue
			}
			exitPrice := ExitPrice(p, tick)
			reason, fire := triggered(o, p, exitPrice)
			if !fire {
				continue
			}
			if err := m.closer.Close(ctx, p, exitPrice, reason, o.ID); err != nil {
				m.log.Error("sl/tp close failed", err,
					logging.Component("sltp"),
					logging.PositionID(p.ID),
					logging.OrderID(o.ID))
				continue
			}
			closed[p.ID] = true
			count++
		}
	}
	return count
}

// triggered reports whether order o fires against its parent position
// p at exitPrice, and with which close reason.
//
// A stop order protects the position from loss: a long's SL fires
// when the bid falls to or through the stop price, a short's when the
// ask rises to or through it. A limit order takes profit on the
// opposite crossings.
func triggered(o ledger.Order, p ledger.Position, exitPrice money.Amount) (ledger.CloseReason, bool) {
	switch o.Type {
	case ledger.OrderStop:
		if o.StopPrice == nil {
			return "", false
		}
		if p.Direction == ledger.Long && money.LTE(exitPrice, *o.StopPrice) {
			return ledger.CloseStopLoss, true
		}
		if p.Direction == ledger.Short && money.GTE(exitPrice, *o.StopPrice) {
			return ledger.CloseStopLoss, true
		}
	case ledger.OrderLimit:
		if o.Price == nil {
			return "", false
		}
		if p.Direction == ledger.Long && money.GTE(exitPrice, *o.Price) {
			return ledger.CloseTakeProfit, true
		}
		if p.Direction == ledger.Short && money.LTE(exitPrice, *o.Price) {
			return ledger.CloseTakeProfit, true
		}
	}
	return "", false
}
