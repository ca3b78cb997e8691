// Package userdata keeps the per-user record: connected exchanges, saved
// strategy configs, risk settings and the trading counters the risk gate reads.
package userdata

import (
	"strings"
	"time"

	"tradebot/internal/risk"
	"tradebot/internal/strategy"
	"tradebot/pkg/exchanges/common"
)

// ExchangeConnection is one connected exchange account. Secrets are plaintext
// in memory; stores seal them at rest.
type ExchangeConnection struct {
	Name        string    `json:"name"`
	APIKey      string    `json:"api_key"`
	APISecret   string    `json:"api_secret"`
	Passphrase  string    `json:"passphrase,omitempty"`
	Sandbox     bool      `json:"sandbox"`
	Status      string    `json:"status"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Credentials returns the connector credentials of c.
func (c ExchangeConnection) Credentials() common.Credentials {
	return common.Credentials{
		APIKey:     c.APIKey,
		APISecret:  c.APISecret,
		Passphrase: c.Passphrase,
		Sandbox:    c.Sandbox,
	}
}

// ExchangeConfig is the mock-mode exchange selection.
type ExchangeConfig struct {
	Exchange    string  `json:"exchange"`
	IsTestnet   bool    `json:"is_testnet"`
	TradingPair string  `json:"trading_pair"`
	TestBalance float64 `json:"test_balance"`
}

// BotStatus mirrors whether the user's session was last seen running.
type BotStatus struct {
	Running  bool   `json:"running"`
	Schedule string `json:"schedule"`
}

// Trade is one order outcome of a trading session.
type Trade struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserEmail string    `json:"user_email"`
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	OrderID   string    `json:"order_id,omitempty"`
}

// TradingData holds the trade list and the counters the risk gate reads.
type TradingData struct {
	Trades            []Trade `json:"trades"`
	TotalPnL          float64 `json:"total_pnl"`
	DailyPnL          float64 `json:"daily_pnl"`
	PnLDay            string  `json:"pnl_day,omitempty"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	TotalTrades       int     `json:"total_trades"`
	WinRate           float64 `json:"win_rate"`
}

// Stats returns the counters in the shape the risk gate takes.
func (d TradingData) Stats() risk.SessionStats {
	return risk.SessionStats{
		DailyPnL:          d.DailyPnL,
		ConsecutiveLosses: d.ConsecutiveLosses,
		Day:               d.PnLDay,
	}
}

// MaxStoredTrades bounds the trade list kept in a record.
const MaxStoredTrades = 1000

// Record is everything stored for one user.
type Record struct {
	Exchanges      []ExchangeConnection       `json:"exchanges"`
	Strategies     map[string]strategy.Config `json:"strategies"`
	ExchangeConfig ExchangeConfig             `json:"exchange_config"`
	RiskManagement risk.Limits                `json:"risk_management"`
	BotStatus      BotStatus                  `json:"bot_status"`
	TradingData    TradingData                `json:"trading_data"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// NewRecord returns the record of a user that has never saved anything.
func NewRecord(now time.Time) *Record {
	return &Record{
		Exchanges:  []ExchangeConnection{},
		Strategies: map[string]strategy.Config{},
		ExchangeConfig: ExchangeConfig{
			Exchange:    "binance",
			IsTestnet:   true,
			TradingPair: "BTCUSDT",
			TestBalance: 10000,
		},
		RiskManagement: risk.DefaultLimits(),
		BotStatus:      BotStatus{Schedule: "24/7"},
		TradingData:    TradingData{Trades: []Trade{}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Exchange returns the connection named name.
func (r *Record) Exchange(name string) (ExchangeConnection, bool) {
	name = normalize(name)
	for _, c := range r.Exchanges {
		if c.Name == name {
			return c, true
		}
	}
	return ExchangeConnection{}, false
}

// AddExchange stores c, replacing an existing connection of the same name in
// place so connection order is kept.
func (r *Record) AddExchange(c ExchangeConnection) {
	c.Name = normalize(c.Name)
	for i := range r.Exchanges {
		if r.Exchanges[i].Name == c.Name {
			r.Exchanges[i] = c
			return
		}
	}
	r.Exchanges = append(r.Exchanges, c)
}

// RemoveExchange drops the connection named name and reports whether it existed.
func (r *Record) RemoveExchange(name string) bool {
	name = normalize(name)
	for i := range r.Exchanges {
		if r.Exchanges[i].Name == name {
			r.Exchanges = append(r.Exchanges[:i], r.Exchanges[i+1:]...)
			return true
		}
	}
	return false
}

// AppendTrade adds t to the trade list and bumps the trade counter.
func (r *Record) AppendTrade(t Trade) {
	r.TradingData.Trades = append(r.TradingData.Trades, t)
	if n := len(r.TradingData.Trades); n > MaxStoredTrades {
		r.TradingData.Trades = append([]Trade(nil), r.TradingData.Trades[n-MaxStoredTrades:]...)
	}
	r.TradingData.TotalTrades++
}

// RecordPnL folds a realized result into the counters.
func (r *Record) RecordPnL(pnl float64, now time.Time) {
	stats := r.TradingData.Stats().Record(pnl, now)
	r.TradingData.DailyPnL = stats.DailyPnL
	r.TradingData.PnLDay = stats.Day
	r.TradingData.ConsecutiveLosses = stats.ConsecutiveLosses
	r.TradingData.TotalPnL += pnl
}

func (r *Record) normalizeDefaults() {
	if r.Exchanges == nil {
		r.Exchanges = []ExchangeConnection{}
	}
	if r.Strategies == nil {
		r.Strategies = map[string]strategy.Config{}
	}
	if r.TradingData.Trades == nil {
		r.TradingData.Trades = []Trade{}
	}
	if r.RiskManagement == (risk.Limits{}) {
		r.RiskManagement = risk.DefaultLimits()
	}
	if r.BotStatus.Schedule == "" {
		r.BotStatus.Schedule = "24/7"
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
