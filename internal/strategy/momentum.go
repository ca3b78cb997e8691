package strategy

import (
	"fmt"

	"tradebot/internal/indicators"
)

func evaluateMomentum(price float64, history []float64, lookback int, threshold float64) (Action, string) {
	m, ok := indicators.Momentum(price, history, lookback)
	if !ok {
		return ActionHold, fmt.Sprintf("momentum needs %d prices, have %d", lookback, len(history))
	}
	switch {
	case m > threshold:
		return ActionBuy, fmt.Sprintf("momentum %.4f above %.4f", m, threshold)
	case m < -threshold:
		return ActionSell, fmt.Sprintf("momentum %.4f below -%.4f", m, threshold)
	default:
		return ActionHold, fmt.Sprintf("momentum %.4f within ±%.4f", m, threshold)
	}
}
