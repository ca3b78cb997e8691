package strategy

import (
	"fmt"

	"tradebot/internal/indicators"
)

// default rule thresholds, independent of the configured ones
const (
	fallbackOversold   = 30
	fallbackOverbought = 70
)

// Evaluate applies the configured strategy to one price observation.
// history is the symbol's recent prices, newest last. Too little history
// yields a hold, never an error.
func Evaluate(symbol string, price float64, ind indicators.Values, cfg Config, history []float64) Signal {
	kind := cfg.Kind()
	var (
		action Action
		reason string
	)
	switch kind {
	case KindRSI:
		action, reason = evaluateRSI(ind.RSI, cfg.RSIOversold, cfg.RSIOverbought)
	case KindMomentum:
		action, reason = evaluateMomentum(price, history, cfg.MomentumLookback, cfg.MomentumThreshold)
	case KindBreakout:
		action, reason = evaluateBreakout(price, history, cfg.BreakoutPeriod, cfg.BreakoutMultiplier)
	default:
		action, reason = evaluateRSI(ind.RSI, fallbackOversold, fallbackOverbought)
		reason = fmt.Sprintf("default rule (%q): %s", cfg.ActiveStrategy, reason)
	}
	return Signal{
		Action:     action,
		Symbol:     symbol,
		Price:      price,
		Reason:     reason,
		Strategy:   kind,
		Indicators: ind,
	}
}
