package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/propfirm/riskengine/cache"
	"github.com/propfirm/riskengine/config"
	"github.com/propfirm/riskengine/db/migrations"
	"github.com/propfirm/riskengine/feed"
	"github.com/propfirm/riskengine/ledger"
	"github.com/propfirm/riskengine/logging"
	"github.com/propfirm/riskengine/monitor"
	"github.com/propfirm/riskengine/risk"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger(logging.INFO).Fatal("failed to load configuration", err)
	}

	log := logging.NewLogger(parseLogLevel(cfg.Logging.Level))
	log.Info("risk engine starting",
		logging.Component("main"),
		logging.String("environment", cfg.Environment),
		logging.String("interval", cfg.Monitor.Interval.String()))

	cache.StaleAfter = cfg.Monitor.PriceStale

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runMigrations(cfg); err != nil {
		log.Fatal("migrations failed", err, logging.Component("main"))
	}

	gateway, err := ledger.Connect(ctx, cfg.DSN(), log)
	if err != nil {
		log.Fatal("ledger connect failed", err, logging.Component("main"))
	}
	defer gateway.Close()

	priceCache := cache.NewPriceCache()
	feedClient := feed.NewClient(cfg.Feed.URL, feed.DefaultSymbolMap(), priceCache, log)
	go feedClient.Run()

	fallback := ledger.NewFallbackLoader(gateway, priceCache, ledger.DefaultFallbackSymbols(), log)
	closer := risk.NewCloser(gateway, log)
	matcher := risk.NewMatcher(priceCache, closer, log)
	marginGuard := risk.NewMarginGuard(priceCache, closer, log)
	drawdownGuard := risk.NewDrawdownGuard(priceCache, closer, gateway, log)
	reset := monitor.NewDailyReset(gateway, log)

	loop := monitor.NewLoop(gateway, fallback, matcher, marginGuard, drawdownGuard,
		reset, priceCache, cfg.Monitor.Interval, log)
	go loop.Run(ctx)

	health := monitor.NewHealth(feedClient, priceCache)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: health.Handler(),
	}
	go func() {
		log.Info("health endpoint listening",
			logging.Component("main"),
			logging.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("health server failed", err, logging.Component("main"))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", logging.Component("main"), logging.String("signal", sig.String()))

	cancel()
	feedClient.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// runMigrations applies any pending schema migrations. Idempotent:
// already-applied versions are skipped.
func runMigrations(cfg *config.Config) error {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db)
	for _, m := range migrations.GetRegisteredMigrations() {
		migrator.Register(m)
	}
	if err := migrator.Init(); err != nil {
		return err
	}
	return migrator.Up()
}

func parseLogLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}
