package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("WATCH_SYMBOLS", "")
	t.Setenv("TRADING_INTERVAL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "./data/tradebot.db" {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if len(cfg.WatchSymbols) != 3 || cfg.WatchSymbols[2] != "SOLUSDT" {
		t.Errorf("WatchSymbols = %v", cfg.WatchSymbols)
	}
	if cfg.TradingInterval != 10*time.Second || cfg.Risk.MaxConsecutiveLosses != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.UsesDevSecret() {
		t.Error("expected the development secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("DATABASE_PATH", "/tmp/legacy.db")
	t.Setenv("WATCH_SYMBOLS", " BTC-USDT , ,ETH-USDT")
	t.Setenv("TRADING_INTERVAL", "3")
	t.Setenv("TRADING_ERROR_BACKOFF", "1m")
	t.Setenv("RISK_MIN_QUOTE_BALANCE", "25")
	t.Setenv("MOCK_TRADING_PAIR", "ethusdt")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/tmp/legacy.db" {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if len(cfg.WatchSymbols) != 2 || cfg.WatchSymbols[0] != "BTC-USDT" {
		t.Errorf("WatchSymbols = %v", cfg.WatchSymbols)
	}
	if cfg.TradingInterval != 3*time.Second || cfg.TradingErrorBackoff != time.Minute {
		t.Errorf("intervals = %s %s", cfg.TradingInterval, cfg.TradingErrorBackoff)
	}
	if cfg.Risk.MinQuoteBalance != 25 || cfg.MockTradingPair != "ETHUSDT" {
		t.Errorf("cfg = %+v", cfg)
	}
}
