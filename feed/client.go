// Package feed streams best bid/ask quotes for crypto symbols off a
// single multiplexed book-ticker WebSocket and writes them into the
// engine's price cache. Forex and metals prices arrive separately,
// via the fallback loader in the ledger package.
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/money"
	"github.com/propfirm/riskengine/monitoring"
)

// bookTickerEvent is the Binance book-ticker wire format: best bid/ask
// for one symbol.
type bookTickerEvent struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// streamMessage wraps a single frame of a combined/multiplexed stream.
type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

const (
	heartbeatInterval = 3 * time.Minute
	minBackoff        = 1 * time.Second
	maxBackoff        = 30 * time.Second
	dialTimeout       = 10 * time.Second
)

// Client maintains exactly one live connection to the exchange feed,
// reconnecting with exponential backoff on drop.
type Client struct {
	url       string
	symbolMap map[string]string // exchange symbol -> platform symbol
	cache     *cache.PriceCache
	log       *logging.Logger
	conn      *websocket.Conn
	stopCh    chan struct{}

	mu        sync.Mutex // guards attempts and connected for the health endpoint
	attempts  int
	connected bool
}

// NewClient constructs a feed client that writes ticks for the
// symbols named in symbolMap into priceCache.
func NewClient(url string, symbolMap map[string]string, priceCache *cache.PriceCache, log *logging.Logger) *Client {
	return &Client{
		url:       url,
		symbolMap: symbolMap,
		cache:     priceCache,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

// Run connects and blocks, reconnecting on drop, until Stop is
// called. It never returns an error to the caller; all connection
// failures are logged and retried.
func (c *Client) Run() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := c.connectOnce(); err != nil {
			c.log.Warn("feed connect failed", logging.String("error", err.Error()))
		}

		c.mu.Lock()
		delay := backoff(c.attempts)
		c.attempts++
		c.mu.Unlock()
		monitoring.RecordFeedReconnect()

		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// backoff returns min(1s * 2^attempts, 30s).
func backoff(attempts int) time.Duration {
	d := minBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (c *Client) connectOnce() error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.conn = conn
	c.mu.Lock()
	c.attempts = 0
	c.connected = true
	c.mu.Unlock()
	monitoring.SetFeedConnected(true)
	c.log.Info("feed connected", logging.Component("feed"))

	heartbeatStop := make(chan struct{})
	go c.heartbeat(conn, heartbeatStop)
	defer close(heartbeatStop)
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		monitoring.SetFeedConnected(false)
	}()

	for {
		select {
		case <-c.stopCh:
			conn.Close()
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}

		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var sm streamMessage
	if err := json.Unmarshal(message, &sm); err != nil {
		return
	}

	var ticker bookTickerEvent
	if err := json.Unmarshal(sm.Data, &ticker); err != nil {
		return
	}
	if ticker.Symbol == "" || ticker.BidPrice == "" || ticker.AskPrice == "" {
		return
	}

	symbol, known := c.symbolMap[ticker.Symbol]
	if !known {
		return
	}

	bid, err := money.Parse(ticker.BidPrice)
	if err != nil {
		return
	}
	ask, err := money.Parse(ticker.AskPrice)
	if err != nil {
		return
	}

	tick := cache.Tick{Bid: bid, Ask: ask}
	last := tick.Mid()

	c.cache.Set(symbol, bid, ask, last, time.Now())
}

func (c *Client) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("feed ping failed", logging.String("error", err.Error()))
			}
		}
	}
}

// Connected reports whether the socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ReconnectAttempts reports the current backoff attempt counter. It
// resets to zero on every successful open.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Stop shuts the client down. Safe to call once.
func (c *Client) Stop() {
	close(c.stopCh)
	if c.conn != nil {
		c.conn.Close()
	}
}

// DefaultSymbolMap is the platform's fixed Binance-symbol ->
// internal-symbol translation table.
func DefaultSymbolMap() map[string]string {
	return map[string]string{
		"BTCUSDT": "BTC-USD",
		"ETHUSDT": "ETH-USD",
	}
}
