package events

import "time"

// Event enumerates the topics published by the bot.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventSignal        Event = "strategy_signal"
	EventRiskRejected  Event = "risk_rejected"
	EventTradeExecuted Event = "trade_executed"
	EventOrderFailed   Event = "order_failed"
	EventSessionState  Event = "session_state"
	EventMockTrade     Event = "mock_trade"
)

// Message is what subscribers receive.
type Message struct {
	Event Event     `json:"event"`
	Time  time.Time `json:"time"`
	User  string    `json:"user,omitempty"`
	Data  any       `json:"data"`
}

// SessionState is published when a user's session starts or stops.
type SessionState struct {
	Running bool   `json:"running"`
	Reason  string `json:"reason,omitempty"`
}
