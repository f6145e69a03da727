// Package monitoring exposes the engine's Prometheus metrics. Metrics
// are registered on the default registry via promauto and served on
// the health server's /metrics route; the liveness endpoint itself
// lives in package monitor.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Monitor loop metrics
	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskengine_tick_duration_seconds",
			Help:    "Duration of one monitor loop tick",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	ticksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskengine_ticks_total",
			Help: "Total number of monitor loop ticks",
		},
	)

	// Enforcement metrics
	positionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskengine_positions_closed_total",
			Help: "Positions closed by the engine, by close reason",
		},
		[]string{"reason"},
	)

	breachesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskengine_breaches_total",
			Help: "Accounts breached, by drawdown kind",
		},
		[]string{"kind"},
	)

	marginCallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskengine_margin_calls_total",
			Help: "Margin call notifications raised",
		},
	)

	stopOutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskengine_stop_outs_total",
			Help: "Stop-out liquidations issued",
		},
	)

	// Price feed metrics
	feedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskengine_feed_reconnects_total",
			Help: "Exchange feed reconnect attempts",
		},
	)

	feedConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskengine_feed_connected",
			Help: "Whether the exchange feed socket is currently open (1/0)",
		},
	)

	priceCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskengine_price_cache_symbols",
			Help: "Symbols currently held in the price cache",
		},
	)

	priceCacheFresh = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskengine_price_cache_fresh_symbols",
			Help: "Symbols in the price cache with a fresh tick",
		},
	)

	// Ledger metrics
	ledgerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskengine_ledger_errors_total",
			Help: "Failed ledger operations, by operation",
		},
		[]string{"operation"},
	)
)

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTick records one completed monitor loop tick.
func ObserveTick(d time.Duration) {
	ticksTotal.Inc()
	tickDuration.Observe(d.Seconds())
}

// RecordPositionClosed records an engine-issued close.
func RecordPositionClosed(reason string) {
	positionsClosed.WithLabelValues(reason).Inc()
}

// RecordBreach records an account breach by drawdown kind.
func RecordBreach(kind string) {
	breachesTotal.WithLabelValues(kind).Inc()
}

// RecordMarginCall records a margin call notification.
func RecordMarginCall() {
	marginCallsTotal.Inc()
}

// RecordStopOut records a stop-out liquidation.
func RecordStopOut() {
	stopOutsTotal.Inc()
}

// RecordFeedReconnect records a feed reconnect attempt.
func RecordFeedReconnect() {
	feedReconnects.Inc()
}

// SetFeedConnected sets the feed connection gauge.
func SetFeedConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	feedConnected.Set(value)
}

// SetPriceCacheStats sets the price cache gauges.
func SetPriceCacheStats(size, fresh int) {
	priceCacheSize.Set(float64(size))
	priceCacheFresh.Set(float64(fresh))
}

// RecordLedgerError records a failed ledger operation.
func RecordLedgerError(operation string) {
	ledgerErrors.WithLabelValues(operation).Inc()
}
