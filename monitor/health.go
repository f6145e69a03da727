package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/monitoring"
)

// FeedStatus is what the health endpoint reads off the feed client.
type FeedStatus interface {
	Connected() bool
	ReconnectAttempts() int
}

// Health serves the liveness endpoint the hosting platform polls. It
// reads only snapshot state (cache counters, feed flags) and can
// never block the monitor loop.
type Health struct {
	start time.Time
	feed  FeedStatus
	cache *cache.PriceCache
}

// NewHealth constructs the health endpoint.
func NewHealth(feed FeedStatus, priceCache *cache.PriceCache) *Health {
	return &Health{start: time.Now(), feed: feed, cache: priceCache}
}

type healthResponse struct {
	Status            string    `json:"status"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
	FeedConnected     bool      `json:"feed_connected"`
	PriceCacheSize    int       `json:"price_cache_size"`
	FreshPrices       int       `json:"fresh_prices"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	Timestamp         time.Time `json:"timestamp"`
}

// Handler returns the HTTP handler: GET / and GET /health answer the
// liveness JSON, /metrics serves Prometheus, anything else is a 404.
func (h *Health) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		now := time.Now()
		resp := healthResponse{
			Status:            "ok",
			UptimeSeconds:     now.Sub(h.start).Seconds(),
			FeedConnected:     h.feed.Connected(),
			PriceCacheSize:    h.cache.Len(),
			FreshPrices:       h.cache.FreshCount(now),
			ReconnectAttempts: h.feed.ReconnectAttempts(),
			Timestamp:         now,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}
