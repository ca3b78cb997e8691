package strategy

import (
	"strings"

	"tradebot/internal/indicators"
)

// Action is the decision carried by a Signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Kind selects the evaluation rule.
type Kind string

const (
	KindRSI      Kind = "rsi"
	KindMomentum Kind = "momentum"
	KindBreakout Kind = "breakout"
	KindDefault  Kind = "default"
)

// ParseKind maps a configured strategy name to its Kind. Unknown names map to
// KindDefault.
func ParseKind(name string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindRSI, KindMomentum, KindBreakout:
		return k
	default:
		return KindDefault
	}
}

// Signal is a decision emitted by Evaluate. It is consumed once by the risk gate.
type Signal struct {
	Action     Action            `json:"action"`
	Symbol     string            `json:"symbol"`
	Price      float64           `json:"price"`
	Reason     string            `json:"reason"`
	Strategy   Kind              `json:"strategy"`
	Indicators indicators.Values `json:"indicators"`
}

// Actionable reports whether the signal asks for a trade.
func (s Signal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}
