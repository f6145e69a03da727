package risk

import (
	"context"
	"testing"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
)

// fakeLedger records atomic RPC invocations for the evaluator tests.
type fakeLedger struct {
	closes   []ledger.ClosePositionParams
	closeErr error
	breaches []string
}

func (f *fakeLedger) ClosePositionAtomic(_ context.Context, p ledger.ClosePositionParams) error {
	f.closes = append(f.closes, p)
	return f.closeErr
}

func (f *fakeLedger) BreachAccountAtomic(_ context.Context, accountID, reason string) error {
	f.breaches = append(f.breaches, reason)
	return nil
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.FATAL)
}

func longPosition(id, symbol, entry, qty, lev string) ledger.Position {
	return ledger.Position{
		ID:             id,
		AccountID:      "acct-1",
		Symbol:         symbol,
		Direction:      ledger.Long,
		Quantity:       money.MustParse(qty),
		Leverage:       money.MustParse(lev),
		EntryPrice:     money.MustParse(entry),
		IsolatedMargin: money.MustParse("95"),
		TradeFees:      money.MustParse("0.665"),
		Status:         ledger.PositionOpen,
	}
}

func TestCloseLongComposesPnLAndFee(t *testing.T) {
	fl := &fakeLedger{}
	c := NewCloser(fl, testLogger())

	p := longPosition("pos-1", "BTC-USD", "95000", "0.01", "10")
	exit := money.MustParse("98820")

	if err := c.Close(context.Background(), p, exit, ledger.CloseTakeProfit, "ord-1"); err != nil {
		t.Fatal(err)
	}
	if len(fl.closes) != 1 {
		t.Fatalf("expected 1 close call, got %d", len(fl.closes))
	}

	got := fl.closes[0]
	if money.Cmp(got.RealizedPnL, money.MustParse("382.00")) != 0 {
		t.Errorf("realized pnl = %v, want 382.00", got.RealizedPnL)
	}
	if money.Cmp(got.CloseFee, money.MustParse("0.69174")) != 0 {
		t.Errorf("close fee = %v, want 0.69174", got.CloseFee)
	}
	if got.CloseReason != ledger.CloseTakeProfit {
		t.Errorf("close reason = %v, want tp", got.CloseReason)
	}
	if got.TriggeredOrderID != "ord-1" {
		t.Errorf("triggered order id = %q, want ord-1", got.TriggeredOrderID)
	}
	if money.Cmp(got.ExistingFees, p.TradeFees) != 0 {
		t.Errorf("existing fees = %v, want %v", got.ExistingFees, p.TradeFees)
	}
	if money.Cmp(got.IsolatedMargin, p.IsolatedMargin) != 0 {
		t.Errorf("isolated margin = %v, want %v", got.IsolatedMargin, p.IsolatedMargin)
	}
}

func TestCloseShortPnLIsNegatedDiff(t *testing.T) {
	fl := &fakeLedger{}
	c := NewCloser(fl, testLogger())

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

	if err := c.Close(context.Background(), p, money.MustParse("3605"), ledger.CloseStopLoss, ""); err != nil {
		t.Fatal(err)
	}
	got := fl.closes[0]
	if money.Cmp(got.RealizedPnL, money.MustParse("-340.00")) != 0 {
		t.Errorf("realized pnl = %v, want -340.00", got.RealizedPnL)
	}
}

func TestCloseToleratesNotOpenRace(t *testing.T) {
	fl := &fakeLedger{closeErr: ledger.ErrNotOpen}
	c := NewCloser(fl, testLogger())

	p := longPosition("pos-1", "BTC-USD", "95000", "0.01", "10")
	if err := c.Close(context.Background(), p, money.MustParse("96000"), ledger.CloseManual, ""); err != nil {
		t.Errorf("expected not_open to be swallowed, got %v", err)
	}
	// The second attempt is just as benign.
	if err := c.Close(context.Background(), p, money.MustParse("96000"), ledger.CloseManual, ""); err != nil {
		t.Errorf("expected second close to be benign, got %v", err)
	}
	if len(fl.closes) != 2 {
		t.Errorf("expected both attempts to reach the ledger, got %d", len(fl.closes))
	}
}

func TestExitPriceBySide(t *testing.T) {
	tick := cache.Tick{
		Bid:       money.MustParse("100"),
		Ask:       money.MustParse("101"),
		Timestamp: time.Now(),
	}
	long := ledger.Position{Direction: ledger.Long}
	short := ledger.Position{Direction: ledger.Short}

	if money.Cmp(ExitPrice(long, tick), tick.Bid) != 0 {
		t.Error("long should exit at bid")
	}
	if money.Cmp(ExitPrice(short, tick), tick.Ask) != 0 {
		t.Error("short should exit at ask")
	}
}
