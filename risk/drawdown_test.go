package risk

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/money"
)

func TestAbsoluteDrawdownBoundary(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	g := NewDrawdownGuard(pc, NewCloser(fl, testLogger()), fl, testLogger())

	now := time.Now()
	a := ledger.Account{
		ID:              "acct-1",
		StartingBalance: money.MustParse("100000"),
		NetWorth:        money.MustParse("91000"),
		Status:          ledger.AccountActive,
	}

	// Unrealized -500: equity 90500, above the 90000 floor.
	setTick(pc, "AAA-USD", "500", "501", now)
	p := openLong("pos-a", "AAA-USD", "1000", "1", "1", "500")
	if breached := g.Evaluate(context.Background(), a, []ledger.Position{p}, now); breached {
		t.Fatal("equity 90500 must not breach the 90000 floor")
	}
	if len(fl.breaches) != 0 {
		t.Fatal("breach RPC called without a breach")
	}
	if len(fl.closes) != 0 {
		t.Fatal("positions closed without a breach")
	}
}

func TestAbsoluteDrawdownBreachClosesAllAndBreaches(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	g := NewDrawdownGuard(pc, NewCloser(fl, testLogger()), fl, testLogger())

	now := time.Now()
	a := ledger.Account{
		ID:              "acct-1",
		StartingBalance: money.MustParse("100000"),
		NetWorth:        money.MustParse("91000"),
		Status:          ledger.AccountActive,
	}

	// Two positions, both with fresh ticks; combined unrealized
	// -1500 puts equity at 89500, through the 90000 floor.
	setTick(pc, "AAA-USD", "9000", "9001", now)  // long 1 @ 10000 -> -1000
	setTick(pc, "BBB-USD", "4500", "4501", now)  // long 1 @ 5000 -> -500
	p1 := openLong("pos-a", "AAA-USD", "10000", "1", "1", "1000")
	p2 := openLong("pos-b", "BBB-USD", "5000", "1", "1", "500")

	breached := g.Evaluate(context.Background(), a, []ledger.Position{p1, p2}, now)
	if !breached {
		t.Fatal("equity 89500 must breach the 90000 floor")
	}
	if len(fl.closes) != 2 {
		t.Fatalf("expected all positions closed, got %d", len(fl.closes))
	}
	for _, c := range fl.closes {
		if c.CloseReason != ledger.CloseLiquidation {
			t.Errorf("close reason = %v, want liquidation", c.CloseReason)
		}
	}
	if len(fl.breaches) != 1 {
		t.Fatalf("expected 1 breach RPC, got %d", len(fl.breaches))
	}
	if !strings.Contains(fl.breaches[0], "Max drawdown") {
		t.Errorf("breach reason %q should mention max drawdown", fl.breaches[0])
	}
}

func TestDailyDrawdownBreach(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	g := NewDrawdownGuard(pc, NewCloser(fl, testLogger()), fl, testLogger())

	now := time.Now()
	a := ledger.Account{
		ID:              "acct-1",
		StartingBalance: money.MustParse("100000"),
		NetWorth:        money.MustParse("94900"),
		DayStartBalance: money.MustParse("100000"),
		DayStartEquity:  money.MustParse("100000"),
		DayStartDate:    ledger.TradingDay(now),
		Status:          ledger.AccountActive,
	}

	// Equity 94900 <= floor 95000, while absolute drawdown (5.1%)
	// is still inside its 10% limit.
	breached := g.Evaluate(context.Background(), a, nil, now)
	if !breached {
		t.Fatal("equity 94900 must breach the 95000 daily floor")
	}
	if len(fl.breaches) != 1 {
		t.Fatalf("expected 1 breach RPC, got %d", len(fl.breaches))
	}
	if !strings.Contains(fl.breaches[0], "Daily drawdown") {
		t.Errorf("breach reason %q should mention daily drawdown", fl.breaches[0])
	}
}

func TestDailyDrawdownIgnoredWithStaleAnchor(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	g := NewDrawdownGuard(pc, NewCloser(fl, testLogger()), fl, testLogger())

	now := time.Now()
	a := ledger.Account{
		ID:              "acct-1",
		StartingBalance: money.MustParse("100000"),
		NetWorth:        money.MustParse("94900"),
		DayStartBalance: money.MustParse("100000"),
		DayStartEquity:  money.MustParse("100000"),
		DayStartDate:    ledger.TradingDay(now.AddDate(0, 0, -1)),
		Status:          ledger.AccountActive,
	}

	if breached := g.Evaluate(context.Background(), a, nil, now); breached {
		t.Error("yesterday's anchor must not drive today's daily drawdown")
	}
}

func TestZeroStartingBalanceNeverBreaches(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	g := NewDrawdownGuard(pc, NewCloser(fl, testLogger()), fl, testLogger())

	now := time.Now()
	a := ledger.Account{
		ID:              "acct-1",
		StartingBalance: money.Zero,
		NetWorth:        money.MustParse("-50"),
		Status:          ledger.AccountActive,
	}

	if breached := g.Evaluate(context.Background(), a, nil, now); breached {
		t.Error("zero starting balance must yield a zero drawdown ratio")
	}
	if len(fl.breaches) != 0 {
		t.Error("breach RPC called for zero starting balance")
	}
}

func TestDailyFloorUsesMaxOfBalanceAndEquityAnchor(t *testing.T) {
	fl := &fakeLedger{}
	pc := cache.NewPriceCache()
	g := NewDrawdownGuard(pc, NewCloser(fl, testLogger()), fl, testLogger())

	now := time.Now()
	a := ledger.Account{
		ID:              "acct-1",
		StartingBalance: money.MustParse("100000"),
		NetWorth:        money.MustParse("95500"),
		DayStartBalance: money.MustParse("99000"),
		DayStartEquity:  money.MustParse("101000"),
		DayStartDate:    ledger.TradingDay(now),
		Status:          ledger.AccountActive,
	}

	// Floor from the larger anchor: 101000 * 0.95 = 95950 >= 95500.
	if breached := g.Evaluate(context.Background(), a, nil, now); !breached {
		t.Error("floor must be measured from the larger of balance and equity anchors")
	}
}
