package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradebot/internal/risk"
)

const devJWTSecret = "dev-secret"

// Config holds environment-driven settings for the trading bot.
type Config struct {
	Port string

	// Database
	DBPath string

	// Auth / localization
	JWTSecret string
	Language  string // "en" or "zh"

	// Credential encryption; empty keeps credentials in plaintext
	MasterEncryptionKey string

	// Trading sessions
	WatchSymbols        []string
	TradingInterval     time.Duration
	TradingErrorBackoff time.Duration
	TradingStopTimeout  time.Duration
	IndicatorMode       string // "computed" (default) or "placeholder"
	StrategyConfigPath  string

	// Risk defaults for users without saved limits
	Risk risk.Limits

	// Mock mode
	MockInterval    time.Duration
	MockTradingPair string
	MockTestnet     bool
	MockInitialCash float64
	MockAutostart   bool

	// Connector pool
	GatewayIdleTimeout    time.Duration
	GatewayHealthInterval time.Duration
	GatewayMaxConnectors  int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/tradebot.db")
	}

	defaults := risk.DefaultLimits()
	return &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              dbPath,
		JWTSecret:           getEnv("JWT_SECRET", devJWTSecret),
		Language:            getEnv("LANGUAGE", "en"),
		MasterEncryptionKey: os.Getenv("MASTER_ENCRYPTION_KEY"),

		WatchSymbols:        splitAndTrim(getEnv("WATCH_SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),
		TradingInterval:     getEnvDuration("TRADING_INTERVAL", 10*time.Second),
		TradingErrorBackoff: getEnvDuration("TRADING_ERROR_BACKOFF", 30*time.Second),
		TradingStopTimeout:  getEnvDuration("TRADING_STOP_TIMEOUT", 5*time.Second),
		IndicatorMode:       strings.ToLower(getEnv("INDICATOR_MODE", "computed")),
		StrategyConfigPath:  getEnv("STRATEGY_CONFIG_PATH", "strategies.yaml"),

		Risk: risk.Limits{
			MaxDailyLossPct:      getEnvFloat("RISK_MAX_DAILY_LOSS_PCT", defaults.MaxDailyLossPct),
			MaxPositionSizePct:   getEnvFloat("RISK_MAX_POSITION_SIZE_PCT", defaults.MaxPositionSizePct),
			MaxConsecutiveLosses: getEnvInt("RISK_MAX_CONSECUTIVE_LOSSES", defaults.MaxConsecutiveLosses),
			StopLossPct:          getEnvFloat("RISK_STOP_LOSS_PCT", defaults.StopLossPct),
			TakeProfitPct:        getEnvFloat("RISK_TAKE_PROFIT_PCT", defaults.TakeProfitPct),
			MinQuoteBalance:      getEnvFloat("RISK_MIN_QUOTE_BALANCE", defaults.MinQuoteBalance),
			RiskPerTrade:         getEnvFloat("RISK_PER_TRADE", defaults.RiskPerTrade),
			DefaultQuote:         strings.ToUpper(getEnv("RISK_DEFAULT_QUOTE", defaults.DefaultQuote)),
		},

		MockInterval:    getEnvDuration("MOCK_INTERVAL", 5*time.Second),
		MockTradingPair: strings.ToUpper(getEnv("MOCK_TRADING_PAIR", "BTCUSDT")),
		MockTestnet:     getEnv("MOCK_TESTNET", "true") == "true",
		MockInitialCash: getEnvFloat("MOCK_INITIAL_CASH", 10000),
		MockAutostart:   getEnv("MOCK_AUTOSTART", "false") == "true",

		GatewayIdleTimeout:    getEnvDuration("GATEWAY_IDLE_TIMEOUT", 30*time.Minute),
		GatewayHealthInterval: getEnvDuration("GATEWAY_HEALTH_INTERVAL", 5*time.Minute),
		GatewayMaxConnectors:  getEnvInt("GATEWAY_MAX_CONNECTORS", 100),
	}, nil
}

// UsesDevSecret reports whether JWT tokens are signed with the built-in secret.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devJWTSecret
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("10s") or plain seconds ("10").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
