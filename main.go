package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradebot/internal/api"
	"tradebot/internal/engine"
	"tradebot/internal/events"
	"tradebot/internal/gateway"
	"tradebot/internal/indicators"
	"tradebot/internal/market"
	"tradebot/internal/monitor"
	"tradebot/internal/persistence"
	"tradebot/internal/session"
	"tradebot/internal/state"
	"tradebot/internal/strategy"
	"tradebot/internal/userdata"
	"tradebot/pkg/cache"
	"tradebot/pkg/config"
	"tradebot/pkg/crypto"
	"tradebot/pkg/db"
	"tradebot/pkg/exchanges/binance"
	"tradebot/pkg/exchanges/common"
	"tradebot/pkg/i18n"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)
	if cfg.UsesDevSecret() {
		log.Println(i18n.Get("DevJWTSecret"))
	}

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	sysMetrics := monitor.NewSystemMetrics()
	log.Println(i18n.Get("SystemMetricsInit"))
	quotes := cache.NewQuoteCache()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	// Credentials at rest. A nil Sealer keeps them in plaintext.
	var sealer userdata.Sealer
	if cfg.MasterEncryptionKey == "" {
		log.Println(i18n.Get("KeyringDisabled"))
	} else {
		kr, err := crypto.NewKeyring(os.Getenv)
		if err != nil {
			log.Fatalf(i18n.Get("KeyringFailed"), err)
		}
		sealer = kr
		log.Printf(i18n.Get("KeyringLoaded"), kr.CurrentVersion())
	}
	store := userdata.NewSQLStore(database, sealer)
	store.SetDefaultLimits(cfg.Risk)

	// Strategy defaults from YAML; a missing file keeps the built-in values.
	stratCfg, err := strategy.LoadConfig(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf(i18n.Get("StrategyConfigLoadFailed"), cfg.StrategyConfigPath, err)
	} else {
		log.Printf(i18n.Get("StrategyConfigLoaded"), cfg.StrategyConfigPath, stratCfg.ActiveStrategy)
	}

	stateMgr := state.NewManager(database, stratCfg, cfg.MockInitialCash)
	if err := stateMgr.Load(ctx); err != nil {
		log.Fatalf(i18n.Get("StateLoadFailed"), err)
	}

	indSource, err := indicators.NewSource(indicators.Mode(cfg.IndicatorMode))
	if err != nil {
		log.Fatalf(i18n.Get("IndicatorModeFailed"), err)
	}
	if indSource.Name() == string(indicators.ModePlaceholder) {
		log.Println(i18n.Get("PlaceholderIndicators"))
	}

	// Connector pool
	poolCfg := gateway.DefaultConfig()
	poolCfg.MaxSize = cfg.GatewayMaxConnectors
	poolCfg.IdleTimeout = cfg.GatewayIdleTimeout
	poolCfg.HealthInterval = cfg.GatewayHealthInterval
	pool := gateway.NewManager(gateway.DefaultFactory, poolCfg)
	pool.Start(ctx)
	log.Printf(i18n.Get("GatewayPoolStarted"), poolCfg.MaxSize, poolCfg.IdleTimeout)
	go reportPoolStats(ctx, pool, sysMetrics)

	history := persistence.NewBatchWriter(database.Queries(), 50, time.Second)

	engService := engine.NewImpl(engine.Config{
		Store:   store,
		Pool:    pool,
		Factory: gateway.DefaultFactory,
		State:   stateMgr,
		Session: session.Config{
			Symbols:      cfg.WatchSymbols,
			Interval:     cfg.TradingInterval,
			ErrorBackoff: cfg.TradingErrorBackoff,
			StopTimeout:  cfg.TradingStopTimeout,
		},
		Indicators: indSource,
		Bus:        bus,
		Quotes:     quotes,
		History:    history,
		Metrics:    sysMetrics,
	})
	log.Println(i18n.Get("EngineServiceInit"))

	mon := &monitor.Monitor{Bus: bus, Sink: monitor.LogSink{}, Metrics: sysMetrics}
	mon.Start(ctx)
	log.Println(i18n.Get("MonitorStarted"))

	// Public prices come from Binance; mock mode follows MOCK_TESTNET.
	feedConn := binance.New(common.Credentials{})
	feed := &market.Feed{
		Source:   feedConn,
		Exchange: feedConn.Name(),
		Cache:    quotes,
		Bus:      bus,
		Symbols:  cfg.WatchSymbols,
		Interval: cfg.TradingInterval,
	}
	feed.Start(ctx)
	log.Printf(i18n.Get("PriceFeedStarted"), cfg.WatchSymbols, cfg.TradingInterval)

	mockConn := binance.New(common.Credentials{Sandbox: cfg.MockTestnet})
	trader := &market.MockTrader{
		State:      stateMgr,
		Prices:     market.NewFallbackSource(mockConn, time.Now().UnixNano()),
		Indicators: indSource,
		Symbol:     cfg.MockTradingPair,
		Interval:   cfg.MockInterval,
		Bus:        bus,
		Metrics:    sysMetrics,
	}
	trader.Start(ctx)
	log.Printf(i18n.Get("MockTraderStarted"), cfg.MockTradingPair, cfg.MockInterval)
	if cfg.MockAutostart {
		stateMgr.SetRunning(true)
		log.Println(i18n.Get("MockAutostart"))
	}

	// API
	server := api.NewServer(api.Options{
		Engine:    engService,
		DB:        database,
		State:     stateMgr,
		Quotes:    quotes,
		Bus:       bus,
		Metrics:   sysMetrics,
		JWTSecret: cfg.JWTSecret,
		Meta: api.SystemMeta{
			Version:         buildVersion,
			Symbols:         cfg.WatchSymbols,
			IndicatorMode:   indSource.Name(),
			MockTradingPair: cfg.MockTradingPair,
		},
	})
	httpServer := server.HTTPServer(":" + cfg.Port)
	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println(i18n.Get("ShuttingDown"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf(i18n.Get("APIServerError"), err)
	}

	engService.Shutdown()
	log.Println(i18n.Get("SessionsStopped"))
	cancel()
	pool.Stop()
	if err := history.Close(); err != nil {
		log.Printf("history flush: %v", err)
	} else {
		log.Println(i18n.Get("HistoryFlushed"))
	}
	log.Println(i18n.Get("ShutdownComplete"))
}

// reportPoolStats copies connector pool counters into the metrics snapshot.
func reportPoolStats(ctx context.Context, pool *gateway.Manager, metrics *monitor.SystemMetrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetGatewayPoolStats(pool.Stats())
		}
	}
}
