package risk

import (
	"context"
	"testing"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/money"
)

func amountPtr(s string) *money.Amount {
	a := money.MustParse(s)
	return &a
}

func setTick(c *cache.PriceCache, symbol, bid, ask string, ts time.Time) {
	b := money.MustParse(bid)
	a := money.MustParse(ask)
	c.Set(symbol, b, a, b, ts)
}

func TestTakeProfitOnLong(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	m := NewMatcher(pc, NewCloser(fl, testLogger()), testLogger())

	now := time.Now()
	setTick(pc, "BTC-USD", "98820", "98830", now)

	p := longPosition("pos-1", "BTC-USD", "95000", "0.01", "10")
	tp := ledger.Order{
		ID:         "ord-tp",
		PositionID: "pos-1",
		Type:       ledger.OrderLimit,
		Direction:  ledger.Short,
		Quantity:   money.MustParse("0.01"),
		Price:      amountPtr("98800"),
		Status:     ledger.OrderPending,
	}

	closed := m.Run(context.Background(), []ledger.Position{p}, []ledger.Order{tp}, now)
	if closed != 1 {
		t.Fatalf("expected 1 close, got %d", closed)
	}
	got := fl.closes[0]
	if got.CloseReason != ledger.CloseTakeProfit {
		t.Errorf("reason = %v, want tp", got.CloseReason)
	}
	if money.Cmp(got.ExitPrice, money.MustParse("98820")) != 0 {
		t.Errorf("exit price = %v, want bid 98820", got.ExitPrice)
	}
	if money.Cmp(got.RealizedPnL, money.MustParse("382.00")) != 0 {
		t.Errorf("realized pnl = %v, want 382.00", got.RealizedPnL)
	}
}

func TestStopLossOnShort(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	m := NewMatcher(pc, NewCloser(fl, testLogger()), testLogger())

	now := time.Now()
	setTick(pc, "ETH-USD", "3595", "3605", now)

	p := ledger.Position{
		ID:         "pos-2",
		AccountID:  "acct-1",
		Symbol:     "ETH-USD",
		Direction:  ledger.Short,
		Quantity:   money.MustParse("0.8"),
		Leverage:   money.MustParse("5"),
		EntryPrice: money.MustParse("3520"),
		Status:     ledger.PositionOpen,
	}
	sl := ledger.Order{
		ID:         "ord-sl",
		PositionID: "pos-2",
		Type:       ledger.OrderStop,
		Direction:  ledger.Long,
		Quantity:   money.MustParse("0.8"),
		StopPrice:  amountPtr("3600"),
		Status:     ledger.OrderPending,
	}

	closed := m.Run(context.Background(), []ledger.Position{p}, []ledger.Order{sl}, now)
	if closed != 1 {
		t.Fatalf("expected 1 close, got %d", closed)
	}
	got := fl.closes[0]
	if got.CloseReason != ledger.CloseStopLoss {
		t.Errorf("reason = %v, want sl", got.CloseReason)
	}
	if money.Cmp(got.ExitPrice, money.MustParse("3605")) != 0 {
		t.Errorf("exit price = %v, want ask 3605", got.ExitPrice)
	}
	if money.Cmp(got.RealizedPnL, money.MustParse("-340.00")) != 0 {
		t.Errorf("realized pnl = %v, want -340.00", got.RealizedPnL)
	}
}

func TestNoTriggerInsideBand(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	m := NewMatcher(pc, NewCloser(fl, testLogger()), testLogger())

	now := time.Now()
	// Bid above the stop: the SL must not fire while bid > stop_price.
	setTick(pc, "BTC-USD", "94100", "94110", now)

	p := longPosition("pos-1", "BTC-USD", "95000", "0.01", "10")
	sl := ledger.Order{
		ID:         "ord-sl",
		PositionID: "pos-1",
		Type:       ledger.OrderStop,
		Direction:  ledger.Short,
		Quantity:   money.MustParse("0.01"),
		StopPrice:  amountPtr("94000"),
		Status:     ledger.OrderPending,
	}

	if closed := m.Run(context.Background(), []ledger.Position{p}, []ledger.Order{sl}, now); closed != 0 {
		t.Errorf("expected no close, got %d", closed)
	}
}

func TestStopLossWinsOverTakeProfitOnGap(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	m := NewMatcher(pc, NewCloser(fl, testLogger()), testLogger())

	now := time.Now()
	// A gapped tick can put both triggers in the money at once.
	// The matcher must resolve to the stop-loss.
	setTick(pc, "BTC-USD", "99000", "99010", now)

	p := longPosition("pos-1", "BTC-USD", "95000", "0.01", "10")
	tp := ledger.Order{
		ID: "ord-tp", PositionID: "pos-1", Type: ledger.OrderLimit,
		Direction: ledger.Short, Quantity: money.MustParse("0.01"),
		Price: amountPtr("98000"), Status: ledger.OrderPending,
	}
	sl := ledger.Order{
		ID: "ord-sl", PositionID: "pos-1", Type: ledger.OrderStop,
		Direction: ledger.Short, Quantity: money.MustParse("0.01"),
		StopPrice: amountPtr("99500"), Status: ledger.OrderPending,
	}

	// TP first in ledger order; SL must still win.
	closed := m.Run(context.Background(), []ledger.Position{p}, []ledger.Order{tp, sl}, now)
	if closed != 1 {
		t.Fatalf("expected exactly 1 close, got %d", closed)
	}
	if fl.closes[0].CloseReason != ledger.CloseStopLoss {
		t.Errorf("reason = %v, want sl to win the gap", fl.closes[0].CloseReason)
	}
}

func TestStaleTickNeverTriggers(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	m := NewMatcher(pc, NewCloser(fl, testLogger()), testLogger())

	now := time.Now()
	setTick(pc, "BTC-USD", "90000", "90010", now.Add(-31*time.Second))

	p := longPosition("pos-1", "BTC-USD", "95000", "0.01", "10")
	sl := ledger.Order{
		ID: "ord-sl", PositionID: "pos-1", Type: ledger.OrderStop,
		Direction: ledger.Short, Quantity: money.MustParse("0.01"),
		StopPrice: amountPtr("94000"), Status: ledger.OrderPending,
	}

	if closed := m.Run(context.Background(), []ledger.Position{p}, []ledger.Order{sl}, now); closed != 0 {
		t.Errorf("stale tick triggered a close")
	}
	if len(fl.closes) != 0 {
		t.Errorf("expected no ledger calls off a stale tick")
	}
}

func TestOrphanOrderSkipped(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	m := NewMatcher(pc, NewCloser(fl, testLogger()), testLogger())

	now := time.Now()
	setTick(pc, "BTC-USD", "90000", "90010", now)

	sl := ledger.Order{
		ID: "ord-sl", PositionID: "pos-gone", Type: ledger.OrderStop,
		Direction: ledger.Short, Quantity: money.MustParse("0.01"),
		StopPrice: amountPtr("94000"), Status: ledger.OrderPending,
	}

	if closed := m.Run(context.Background(), nil, []ledger.Order{sl}, now); closed != 0 {
		t.Errorf("orphan order closed something")
	}
}
