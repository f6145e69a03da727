package feed

import (
	"testing"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/logging"
)

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, c := range cases {
		got := backoff(c.attempts)
		if got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestHandleMessageTranslatesAndStores(t *testing.T) {
	pc := cache.NewPriceCache()
	c := NewClient("wss://example", DefaultSymbolMap(), pc, logging.NewLogger(logging.ERROR))

	frame := `{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"60000.10","a":"60000.50"}}`
	c.handleMessage([]byte(frame))

	tick, ok := pc.Get("BTC-USD")
	if !ok {
		t.Fatal("expected BTC-USD tick to be cached")
	}
	if tick.Bid.String() != "60000.1" {
		t.Errorf("bid = %v, want 60000.1", tick.Bid)
	}
}

func TestHandleMessageUnknownSymbolDropped(t *testing.T) {
	pc := cache.NewPriceCache()
	c := NewClient("wss://example", DefaultSymbolMap(), pc, logging.NewLogger(logging.ERROR))

	frame := `{"stream":"xrpusdt@bookTicker","data":{"s":"XRPUSDT","b":"0.50","a":"0.51"}}`
	c.handleMessage([]byte(frame))

	if _, ok := pc.Get("XRP-USD"); ok {
		t.Error("expected unknown symbol to be dropped")
	}
}

func TestHandleMessageMalformedFrameDropped(t *testing.T) {
	pc := cache.NewPriceCache()
	c := NewClient("wss://example", DefaultSymbolMap(), pc, logging.NewLogger(logging.ERROR))

	c.handleMessage([]byte(`not json`))

	if pc.Len() != 0 {
		t.Error("expected malformed frame to leave cache empty")
	}
}
