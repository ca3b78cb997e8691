// Package engine is the control surface of the bot. The API layer talks to
// trading sessions, exchange connections and configuration only through
// Service.
package engine

import (
	"context"

	"tradebot/internal/risk"
	"tradebot/internal/session"
	"tradebot/internal/strategy"
	"tradebot/pkg/exchanges/common"
)

// Service defines the operations exposed to the API layer.
type Service interface {
	// Trading sessions
	StartTrading(ctx context.Context, user string) (bool, error)
	StopTrading(ctx context.Context, user string) error
	Status(ctx context.Context, user string) (*Status, error)
	TradeHistory(ctx context.Context, user string, limit int) ([]session.TradeHistoryEntry, error)

	// Exchange connections
	SupportedExchanges() []string
	Exchanges(ctx context.Context, user string) ([]ExchangeInfo, error)
	ConnectExchange(ctx context.Context, user string, req ConnectRequest) (*ExchangeInfo, error)
	DisconnectExchange(ctx context.Context, user, exchange string) error
	TestExchange(ctx context.Context, user, exchange string) (bool, string, error)
	Balances(ctx context.Context, user, exchange string) ([]common.Balance, error)
	Tickers(ctx context.Context, user, exchange string, symbols []string) ([]common.Ticker, error)

	// Configuration
	StrategyConfig() strategy.Config
	UpdateStrategyConfig(patch map[string]any) (strategy.Config, error)
	RiskLimits(ctx context.Context, user string) (risk.Limits, error)
	UpdateRiskLimits(ctx context.Context, user string, patch map[string]any) (risk.Limits, error)

	// System
	ActiveSessions() int
	Shutdown()
}
