package strategy

import (
	"fmt"

	"tradebot/internal/indicators"
)

// evaluateBreakout compares price with bands of multiplier population standard
// deviations around the mean of the trailing period. Touching a band is not a
// breakout.
func evaluateBreakout(price float64, history []float64, period int, multiplier float64) (Action, string) {
	if period <= 0 || len(history) < period {
		return ActionHold, fmt.Sprintf("breakout needs %d prices, have %d", period, len(history))
	}
	mean, sd := indicators.MeanStdDev(history[len(history)-period:])
	upper := mean + multiplier*sd
	lower := mean - multiplier*sd
	switch {
	case price > upper:
		return ActionBuy, fmt.Sprintf("price %.4f broke above %.4f", price, upper)
	case price < lower:
		return ActionSell, fmt.Sprintf("price %.4f broke below %.4f", price, lower)
	default:
		return ActionHold, fmt.Sprintf("price %.4f inside [%.4f, %.4f]", price, lower, upper)
	}
}
