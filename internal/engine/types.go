package engine

import (
	"time"

	"tradebot/internal/session"
	"tradebot/internal/userdata"
)

// Status is the per-user answer of the status query.
type Status struct {
	Running            bool           `json:"running"`
	ConnectedExchanges []string       `json:"connected_exchanges"`
	TotalTrades        int            `json:"total_trades"`
	DailyPnL           float64        `json:"daily_pnl"`
	ConsecutiveLosses  int            `json:"consecutive_losses"`
	Session            session.Status `json:"session"`
}

// ConnectRequest carries the credentials of a new exchange connection.
type ConnectRequest struct {
	Exchange   string `json:"exchange" binding:"required"`
	APIKey     string `json:"api_key" binding:"required"`
	APISecret  string `json:"api_secret" binding:"required"`
	Passphrase string `json:"passphrase"`
	Sandbox    bool   `json:"sandbox"`
}

// ExchangeInfo describes a connection without its secrets.
type ExchangeInfo struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Sandbox     bool      `json:"sandbox"`
	APIKey      string    `json:"api_key"` // masked
	ConnectedAt time.Time `json:"connected_at"`
}

func exchangeInfo(c userdata.ExchangeConnection) ExchangeInfo {
	return ExchangeInfo{
		Name:        c.Name,
		Status:      c.Status,
		Sandbox:     c.Sandbox,
		APIKey:      maskKey(c.APIKey),
		ConnectedAt: c.ConnectedAt,
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
